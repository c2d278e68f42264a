package lottery

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anit-serv/greenroom/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Booking{}, &models.SlotDraw{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func seedSlot(t *testing.T, db *gorm.DB, slotKey string, labels ...string) []models.Booking {
	t.Helper()
	bookings := make([]models.Booking, len(labels))
	for i, label := range labels {
		bookings[i] = models.Booking{
			UserID:  "u" + label,
			Label:   label,
			SlotKey: slotKey,
			Status:  models.BookingPending,
		}
		if err := db.Create(&bookings[i]).Error; err != nil {
			t.Fatal(err)
		}
	}
	return bookings
}

func TestRankAssignsCompleteOrder(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC)
	seedSlot(t, db, "2026-08-26 09:00-12:00", "A", "B", "C")
	seedSlot(t, db, "2026-08-26 13:00-17:00", "D")

	res, err := Rank(db, now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Slots != 2 || res.Bookings != 4 {
		t.Fatalf("result = %+v", res)
	}

	var bookings []models.Booking
	db.Where("slot_key = ?", "2026-08-26 09:00-12:00").Order("`rank`").Find(&bookings)
	if len(bookings) != 3 {
		t.Fatalf("slot bookings = %d", len(bookings))
	}
	for i, b := range bookings {
		if b.Status != models.BookingRanked {
			t.Errorf("booking %s status = %s", b.Label, b.Status)
		}
		if b.Rank != i+1 || b.RankTotal != 3 {
			t.Errorf("booking %s rank = %d/%d", b.Label, b.Rank, b.RankTotal)
		}
	}

	var draws []models.SlotDraw
	db.Order("slot_key, `rank`").Find(&draws)
	if len(draws) != 4 {
		t.Fatalf("draws = %d, want one snapshot per booking", len(draws))
	}
	for _, d := range draws {
		if d.ConfirmedAt != nil {
			t.Errorf("draw %d already confirmed", d.ID)
		}
		if !d.DrawnAt.Equal(now) {
			t.Errorf("draw %d drawn at %v", d.ID, d.DrawnAt)
		}
	}
}

func TestRankSecondRunIsNoOp(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC)
	seedSlot(t, db, "2026-08-26 09:00-12:00", "A", "B")

	if _, err := Rank(db, now); err != nil {
		t.Fatal(err)
	}
	res, err := Rank(db, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res.Slots != 0 || res.Bookings != 0 {
		t.Errorf("second run = %+v, want nothing to do", res)
	}
}

func TestRankRedrawsSlotWithLateRegistration(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC)
	slot := "2026-08-26 09:00-12:00"
	seedSlot(t, db, slot, "A", "B")

	if _, err := Rank(db, now); err != nil {
		t.Fatal(err)
	}
	// A new pending booking in an already-drawn slot triggers a full
	// re-draw with fresh snapshots.
	seedSlot(t, db, slot, "C")
	res, err := Rank(db, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res.Slots != 1 || res.Bookings != 3 {
		t.Fatalf("redraw result = %+v", res)
	}

	var draws []models.SlotDraw
	db.Where("slot_key = ?", slot).Find(&draws)
	if len(draws) != 3 {
		t.Fatalf("draws = %d, stale snapshots left behind", len(draws))
	}
	var bookings []models.Booking
	db.Where("slot_key = ?", slot).Order("`rank`").Find(&bookings)
	for i, b := range bookings {
		if b.Rank != i+1 || b.RankTotal != 3 {
			t.Errorf("booking %s rank = %d/%d after redraw", b.Label, b.Rank, b.RankTotal)
		}
	}
}

func TestConfirmMatchesSnapshots(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC)
	seedSlot(t, db, "2026-08-26 09:00-12:00", "A", "B")
	if _, err := Rank(db, now); err != nil {
		t.Fatal(err)
	}

	res, err := Confirm(db, now.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmed != 2 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}

	var bookings []models.Booking
	db.Find(&bookings)
	for _, b := range bookings {
		if b.Status != models.BookingConfirmed {
			t.Errorf("booking %s status = %s", b.Label, b.Status)
		}
	}

	// Second confirm pass finds nothing unconfirmed.
	res, err = Confirm(db, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmed != 0 {
		t.Errorf("second pass confirmed %d", res.Confirmed)
	}
}

func TestConfirmSkipsDeletedBooking(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC)
	bookings := seedSlot(t, db, "2026-08-26 09:00-12:00", "A", "B")
	if _, err := Rank(db, now); err != nil {
		t.Fatal(err)
	}

	// The user deletes between the two passes.
	if err := db.Delete(&models.Booking{}, bookings[0].ID).Error; err != nil {
		t.Fatal(err)
	}

	res, err := Confirm(db, now.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmed != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	var count int64
	db.Model(&models.Booking{}).Count(&count)
	if count != 1 {
		t.Errorf("bookings = %d, the skipped draw resurrected one", count)
	}
}

func TestConfirmSkipsRenamedBooking(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC)
	bookings := seedSlot(t, db, "2026-08-26 09:00-12:00", "A", "B")
	if _, err := Rank(db, now); err != nil {
		t.Fatal(err)
	}

	err := db.Model(&models.Booking{}).Where("id = ?", bookings[1].ID).
		Update("label", "B Renamed").Error
	if err != nil {
		t.Fatal(err)
	}

	res, err := Confirm(db, now.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmed != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}

	var renamed models.Booking
	db.First(&renamed, bookings[1].ID)
	if renamed.Status == models.BookingConfirmed {
		t.Error("renamed booking was confirmed against a stale snapshot")
	}
}
