// Package store wraps GORM access to bookings and wizard sessions.
package store

import (
	"fmt"

	"github.com/anit-serv/greenroom/internal/models"
	"gorm.io/gorm"
)

// Bookings is the typed store for reservation records.
type Bookings struct {
	db *gorm.DB
}

// NewBookings creates a Bookings store.
func NewBookings(db *gorm.DB) *Bookings {
	return &Bookings{db: db}
}

// Insert creates a new booking record.
func (s *Bookings) Insert(b *models.Booking) error {
	if err := s.db.Create(b).Error; err != nil {
		return fmt.Errorf("store: insert booking: %w", err)
	}
	return nil
}

// Get fetches a booking by id. Returns (nil, nil) when the record does
// not exist — callers treat absence as a normal outcome, not an error.
func (s *Bookings) Get(id uint) (*models.Booking, error) {
	var b models.Booking
	err := s.db.First(&b, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get booking %d: %w", id, err)
	}
	return &b, nil
}

// Update applies a partial field update to a booking by id. A nil value
// clears the column. Reports whether a record was actually updated.
func (s *Bookings) Update(id uint, fields map[string]interface{}) (bool, error) {
	result := s.db.Model(&models.Booking{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return false, fmt.Errorf("store: update booking %d: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes a booking by id. Deleting an already-absent record is
// a no-op, reported via the bool — the transport redelivers confirmed
// deletes, so the second delete must not be an error.
func (s *Bookings) Delete(id uint) (bool, error) {
	result := s.db.Delete(&models.Booking{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("store: delete booking %d: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ByUser returns all bookings for a user, sorted by slot key.
func (s *Bookings) ByUser(userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.db.Where("user_id = ?", userID).Order("slot_key").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("store: bookings for user %s: %w", userID, err)
	}
	return bookings, nil
}

// BySlot returns all bookings for an exact slot key.
func (s *Bookings) BySlot(slotKey string) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.db.Where("slot_key = ?", slotKey).Order("`rank`, id").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("store: bookings for slot %s: %w", slotKey, err)
	}
	return bookings, nil
}

// BySlotPrefix returns all bookings whose slot key starts with prefix,
// sorted by slot key. Passing a date ("2026-08-26") yields every booking
// on that day across all time ranges.
func (s *Bookings) BySlotPrefix(prefix string) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.db.Where("slot_key LIKE ?", prefix+"%").Order("slot_key, `rank`, id").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("store: bookings for slot prefix %s: %w", prefix, err)
	}
	return bookings, nil
}
