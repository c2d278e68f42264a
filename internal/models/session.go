package models

import "time"

// Wizard step statuses. An empty Status means the user has no active
// wizard step — absence, not a stored value.
const (
	StepAwaitingName          = "awaiting_name"
	StepEditingName           = "editing_name"
	StepAwaitingEditDate      = "awaiting_edit_date"
	StepAwaitingEditTime      = "awaiting_edit_time"
	StepAwaitingDeleteConfirm = "awaiting_delete_confirm"
	StepAwaitingViewAllDate   = "awaiting_view_all_date"
)

// Session is the single mutable record per user that holds all wizard
// state. The chat transport is stateless and retries delivery, so every
// replay/freshness decision is made against this row.
//
// Field groups:
//   - Status + SessionStartedAt + the step payload fields (editing_*,
//     deleting_*) are set and cleared atomically as a unit. At most one
//     payload group is populated at a time.
//   - OfferedChoices/OfferedChoicesIssuedAt remember the last choice set
//     sent to the user so a stale button press can re-display the current
//     valid choices instead of failing silently.
//   - LastButtonActionAt is the monotonic watermark (millis since epoch):
//     any control issued at or before it is void. LastListingGeneratedAt/
//     LastListingPageViewed are the independent replay guard for paginated
//     listings. These three survive cancel and timeout.
type Session struct {
	UserID                 string `gorm:"primaryKey;size:64"`
	Status                 string `gorm:"size:32"`
	SessionStartedAt       *time.Time
	EditingBookingID       *uint
	EditingSelectedDate    string `gorm:"size:10"`
	DeletingBookingID      *uint
	DeletingLabel          string `gorm:"size:128"`
	OfferedChoices         string `gorm:"type:json"`
	OfferedChoicesIssuedAt *time.Time
	LastButtonActionAt     int64 `gorm:"default:0"`
	LastListingGeneratedAt int64 `gorm:"default:0"`
	LastListingPageViewed  int   `gorm:"default:0"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
