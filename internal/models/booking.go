package models

import "time"

// Booking statuses. A booking is created pending, gets an order within its
// time slot when the lottery runs (ranked), and becomes confirmed when the
// reconciliation pass matches the draw back onto the live record.
const (
	BookingPending   = "pending"
	BookingRanked    = "ranked"
	BookingConfirmed = "confirmed"
)

// Booking is a single room reservation request made through the wizard.
// SlotKey is the composite "YYYY-MM-DD HH:MM-HH:MM" string that identifies
// a calendar date plus a fixed time range; bookings sort naturally by it.
type Booking struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"size:64;not null;index"`
	Label     string `gorm:"size:128;not null"`
	SlotKey   string `gorm:"size:32;not null;index"`
	Status    string `gorm:"size:16;default:pending;index"`
	Rank      int    `gorm:"default:0"`
	RankTotal int    `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotDraw is the snapshot a lottery rank pass writes for one booking.
// The confirmation pass matches these rows back onto live bookings; a
// booking that was deleted or renamed between the two passes is skipped.
type SlotDraw struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SlotKey     string `gorm:"size:32;not null;index"`
	BookingID   uint   `gorm:"not null;uniqueIndex"`
	Label       string `gorm:"size:128;not null"` // label at draw time
	Rank        int    `gorm:"not null"`
	Total       int    `gorm:"not null"`
	DrawnAt     time.Time
	ConfirmedAt *time.Time
}
