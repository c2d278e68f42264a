package store

import (
	"fmt"

	"github.com/anit-serv/greenroom/internal/models"
	"gorm.io/gorm"
)

// Sessions is the typed store for per-user wizard sessions. There is at
// most one row per user id; it is the sole persistence for wizard state.
//
// The writer discipline is read-current, decide, write-new. There is no
// serialization across concurrent writers beyond the monotonic watermark
// guard in AdvanceWatermark — see the freshness guard in internal/wizard.
type Sessions struct {
	db *gorm.DB
}

// NewSessions creates a Sessions store.
func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

// Get fetches the session for a user. Returns (nil, nil) when the user
// has no session row — absence means no wizard state at all.
func (s *Sessions) Get(userID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.Where("user_id = ?", userID).First(&sess).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", userID, err)
	}
	return &sess, nil
}

// Put writes the full session record, creating or replacing it.
func (s *Sessions) Put(sess *models.Session) error {
	if err := s.db.Save(sess).Error; err != nil {
		return fmt.Errorf("store: put session %s: %w", sess.UserID, err)
	}
	return nil
}

// Merge applies a partial field update to a user's session, creating the
// row first if it does not exist. A nil value clears the column.
func (s *Sessions) Merge(userID string, fields map[string]interface{}) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Session{}).Where("user_id = ?", userID).Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		if err := tx.Create(&models.Session{UserID: userID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).Where("user_id = ?", userID).Updates(fields).Error
	})
	if err != nil {
		return fmt.Errorf("store: merge session %s: %w", userID, err)
	}
	return nil
}

// Delete removes a user's session row entirely, replay-guard fields
// included. The wizard itself never calls this; it is for operator
// tooling. Use ClearWizard for cancel/timeout.
func (s *Sessions) Delete(userID string) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("store: delete session %s: %w", userID, err)
	}
	return nil
}

// ClearWizard clears the wizard step status and every step payload field
// as one atomic unit. The replay-guard fields (last_button_action_at and
// the listing generation markers) are deliberately preserved: a stale
// carousel can still be visible in the chat client after a cancel, and
// its buttons must stay void.
func (s *Sessions) ClearWizard(userID string) error {
	fields := map[string]interface{}{
		"status":                    "",
		"session_started_at":        nil,
		"editing_booking_id":        nil,
		"editing_selected_date":     "",
		"deleting_booking_id":       nil,
		"deleting_label":            "",
		"offered_choices":           "",
		"offered_choices_issued_at": nil,
	}
	if err := s.db.Model(&models.Session{}).Where("user_id = ?", userID).Updates(fields).Error; err != nil {
		return fmt.Errorf("store: clear wizard %s: %w", userID, err)
	}
	return nil
}

// AdvanceWatermark raises the user's button-action watermark to ms. The
// update is monotonic: a concurrent writer that already advanced further
// wins, and the row is created when missing.
func (s *Sessions) AdvanceWatermark(userID string, ms int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Session{}).
			Where("user_id = ? AND last_button_action_at < ?", userID, ms).
			Update("last_button_action_at", ms)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		// Either the watermark is already past ms or the row is missing.
		var count int64
		if err := tx.Model(&models.Session{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&models.Session{UserID: userID, LastButtonActionAt: ms}).Error
	})
	if err != nil {
		return fmt.Errorf("store: advance watermark %s: %w", userID, err)
	}
	return nil
}

// RecordListing stores the listing generation and the page the user has
// viewed, the replay guard for "show more" presses.
func (s *Sessions) RecordListing(userID string, generation int64, page int) error {
	return s.Merge(userID, map[string]interface{}{
		"last_listing_generated_at": generation,
		"last_listing_page_viewed":  page,
	})
}
