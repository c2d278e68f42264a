// Package lottery runs the nightly draw that orders competing bookings
// within each time slot. It is split into two idempotent passes:
//
//   - Rank draws a random order over every slot that still has pending
//     bookings, marks them ranked, and writes a SlotDraw snapshot row per
//     booking.
//   - Confirm matches the snapshots back onto the live bookings and
//     marks them confirmed. A booking deleted or renamed between the two
//     passes no longer matches its snapshot and is skipped, never
//     resurrected.
//
// Running either pass twice is safe: Rank only touches slots with
// pending bookings, Confirm only touches unconfirmed snapshots.
package lottery

import (
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/anit-serv/greenroom/internal/models"
)

// RankResult summarises one rank pass.
type RankResult struct {
	Slots    int // slots drawn
	Bookings int // bookings ranked
}

// ConfirmResult summarises one confirm pass.
type ConfirmResult struct {
	Confirmed int
	Skipped   int // snapshots whose booking was deleted or renamed
}

// Rank draws every slot that has at least one pending booking. The whole
// slot is re-drawn so late registrations enter the same lottery as early
// ones; any snapshot from a previous draw of the slot is replaced.
func Rank(db *gorm.DB, now time.Time) (RankResult, error) {
	var slotKeys []string
	err := db.Model(&models.Booking{}).
		Where("status = ?", models.BookingPending).
		Distinct("slot_key").
		Order("slot_key").
		Pluck("slot_key", &slotKeys).Error
	if err != nil {
		return RankResult{}, fmt.Errorf("lottery: pending slots: %w", err)
	}

	var res RankResult
	for _, slotKey := range slotKeys {
		n, err := rankSlot(db, slotKey, now)
		if err != nil {
			return res, err
		}
		res.Slots++
		res.Bookings += n
		log.Printf("lottery: drew %d bookings for slot %s", n, slotKey)
	}
	return res, nil
}

// rankSlot draws one slot inside a transaction.
func rankSlot(db *gorm.DB, slotKey string, now time.Time) (int, error) {
	var drawn int
	err := db.Transaction(func(tx *gorm.DB) error {
		var bookings []models.Booking
		if err := tx.Where("slot_key = ?", slotKey).Order("id").Find(&bookings).Error; err != nil {
			return err
		}
		if len(bookings) == 0 {
			return nil
		}

		rand.Shuffle(len(bookings), func(i, j int) {
			bookings[i], bookings[j] = bookings[j], bookings[i]
		})

		// A re-draw of the slot replaces the previous snapshot wholesale.
		if err := tx.Where("slot_key = ?", slotKey).Delete(&models.SlotDraw{}).Error; err != nil {
			return err
		}

		total := len(bookings)
		for i, b := range bookings {
			rank := i + 1
			err := tx.Model(&models.Booking{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
				"status":     models.BookingRanked,
				"rank":       rank,
				"rank_total": total,
			}).Error
			if err != nil {
				return err
			}
			draw := models.SlotDraw{
				SlotKey:   slotKey,
				BookingID: b.ID,
				Label:     b.Label,
				Rank:      rank,
				Total:     total,
				DrawnAt:   now,
			}
			if err := tx.Create(&draw).Error; err != nil {
				return err
			}
		}
		drawn = total
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("lottery: rank slot %s: %w", slotKey, err)
	}
	return drawn, nil
}

// Confirm matches unconfirmed draw snapshots back onto live bookings.
// The match requires both the booking id and the label recorded at draw
// time: a rename between the passes invalidates the draw for that entry.
func Confirm(db *gorm.DB, now time.Time) (ConfirmResult, error) {
	var draws []models.SlotDraw
	if err := db.Where("confirmed_at IS NULL").Order("slot_key, `rank`").Find(&draws).Error; err != nil {
		return ConfirmResult{}, fmt.Errorf("lottery: unconfirmed draws: %w", err)
	}

	var res ConfirmResult
	for _, draw := range draws {
		var booking models.Booking
		err := db.First(&booking, draw.BookingID).Error
		if err == gorm.ErrRecordNotFound {
			log.Printf("lottery: skip draw %d: booking %d deleted", draw.ID, draw.BookingID)
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("lottery: load booking %d: %w", draw.BookingID, err)
		}
		if booking.Label != draw.Label {
			log.Printf("lottery: skip draw %d: booking %d renamed %q -> %q",
				draw.ID, draw.BookingID, draw.Label, booking.Label)
			res.Skipped++
			continue
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			err := tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
				"status":     models.BookingConfirmed,
				"rank":       draw.Rank,
				"rank_total": draw.Total,
			}).Error
			if err != nil {
				return err
			}
			return tx.Model(&models.SlotDraw{}).Where("id = ?", draw.ID).
				Update("confirmed_at", now).Error
		})
		if err != nil {
			return res, fmt.Errorf("lottery: confirm draw %d: %w", draw.ID, err)
		}
		res.Confirmed++
	}
	return res, nil
}
