package models

import "time"

// AvailabilityConfig stores the weekday allow-list and bookable time
// slots. There is a single row; defaults are persisted on first read so
// subsequent reads are deterministic. Read through a TTL cache — see
// internal/availability.
type AvailabilityConfig struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Weekdays  string `gorm:"type:json;not null"` // JSON array of weekday numbers, 0=Sunday
	TimeSlots string `gorm:"type:json;not null"` // JSON array of {label, value} pairs
	UpdatedAt time.Time
}
