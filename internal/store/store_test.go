package store

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
	if err := db.AutoMigrate(&models.Booking{}, &models.SlotDraw{}, &models.Session{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

// ---------------------------------------------------------------------------
// Bookings
// ---------------------------------------------------------------------------

func TestBookingsGetAbsent(t *testing.T) {
	s := NewBookings(openTestDB(t))
	b, err := s.Get(99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Errorf("got %+v, want nil for absent record", b)
	}
}

func TestBookingsUpdateReportsExistence(t *testing.T) {
	s := NewBookings(openTestDB(t))
	b := &models.Booking{UserID: "u1", Label: "Alpha", SlotKey: "2026-08-26 09:00-12:00", Status: models.BookingPending}
	if err := s.Insert(b); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Update(b.ID, map[string]interface{}{"label": "Beta"})
	if err != nil || !ok {
		t.Fatalf("update existing: ok=%v err=%v", ok, err)
	}
	ok, err = s.Update(b.ID+1, map[string]interface{}{"label": "Gamma"})
	if err != nil || ok {
		t.Fatalf("update absent: ok=%v err=%v", ok, err)
	}
}

func TestBookingsDeleteIsIdempotent(t *testing.T) {
	s := NewBookings(openTestDB(t))
	b := &models.Booking{UserID: "u1", Label: "Alpha", SlotKey: "2026-08-26 09:00-12:00"}
	if err := s.Insert(b); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Delete(b.ID)
	if err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(b.ID)
	if err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if ok {
		t.Error("second delete reported a row")
	}
}

func TestBookingsBySlotPrefix(t *testing.T) {
	s := NewBookings(openTestDB(t))
	seed := []models.Booking{
		{UserID: "u1", Label: "A", SlotKey: "2026-08-26 13:00-17:00", Rank: 2},
		{UserID: "u2", Label: "B", SlotKey: "2026-08-26 09:00-12:00", Rank: 1},
		{UserID: "u3", Label: "C", SlotKey: "2026-08-26 09:00-12:00", Rank: 2},
		{UserID: "u4", Label: "D", SlotKey: "2026-08-27 09:00-12:00", Rank: 1},
	}
	for i := range seed {
		if err := s.Insert(&seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.BySlotPrefix("2026-08-26")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want 3", len(got))
	}
	// Sorted by slot key, then rank.
	wantLabels := []string{"B", "C", "A"}
	for i, b := range got {
		if b.Label != wantLabels[i] {
			t.Errorf("got[%d] = %s, want %s", i, b.Label, wantLabels[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestSessionsGetAbsent(t *testing.T) {
	s := NewSessions(openTestDB(t))
	sess, err := s.Get("nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess != nil {
		t.Errorf("got %+v, want nil", sess)
	}
}

func TestSessionsMergeCreatesAndClears(t *testing.T) {
	s := NewSessions(openTestDB(t))
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	err := s.Merge("u1", map[string]interface{}{
		"status":             models.StepAwaitingName,
		"session_started_at": now,
	})
	if err != nil {
		t.Fatal(err)
	}
	sess, err := s.Get("u1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != models.StepAwaitingName || sess.SessionStartedAt == nil {
		t.Errorf("session = %+v", sess)
	}

	// A nil value clears the column.
	if err := s.Merge("u1", map[string]interface{}{"session_started_at": nil}); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.Get("u1")
	if sess.SessionStartedAt != nil {
		t.Error("nil merge did not clear the column")
	}
}

func TestSessionsClearWizardPreservesReplayGuards(t *testing.T) {
	s := NewSessions(openTestDB(t))
	id := uint(7)
	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	err := s.Put(&models.Session{
		UserID:                 "u1",
		Status:                 models.StepAwaitingDeleteConfirm,
		SessionStartedAt:       &started,
		DeletingBookingID:      &id,
		DeletingLabel:          "Alpha",
		OfferedChoices:         `[{"label":"x","data":"y"}]`,
		OfferedChoicesIssuedAt: &started,
		LastButtonActionAt:     111,
		LastListingGeneratedAt: 222,
		LastListingPageViewed:  3,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ClearWizard("u1"); err != nil {
		t.Fatal(err)
	}
	sess, _ := s.Get("u1")
	if sess.Status != "" || sess.SessionStartedAt != nil || sess.DeletingBookingID != nil ||
		sess.DeletingLabel != "" || sess.OfferedChoices != "" || sess.OfferedChoicesIssuedAt != nil {
		t.Errorf("wizard fields not cleared: %+v", sess)
	}
	if sess.LastButtonActionAt != 111 || sess.LastListingGeneratedAt != 222 || sess.LastListingPageViewed != 3 {
		t.Errorf("replay guards not preserved: %+v", sess)
	}
}

func TestSessionsAdvanceWatermarkMonotonic(t *testing.T) {
	s := NewSessions(openTestDB(t))

	// Creates the row when missing.
	if err := s.AdvanceWatermark("u1", 100); err != nil {
		t.Fatal(err)
	}
	sess, _ := s.Get("u1")
	if sess.LastButtonActionAt != 100 {
		t.Fatalf("watermark = %d", sess.LastButtonActionAt)
	}

	if err := s.AdvanceWatermark("u1", 200); err != nil {
		t.Fatal(err)
	}
	// A lower value never moves it back.
	if err := s.AdvanceWatermark("u1", 150); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.Get("u1")
	if sess.LastButtonActionAt != 200 {
		t.Errorf("watermark = %d, want 200", sess.LastButtonActionAt)
	}
}

func TestSessionsRecordListing(t *testing.T) {
	s := NewSessions(openTestDB(t))
	if err := s.RecordListing("u1", 555, 2); err != nil {
		t.Fatal(err)
	}
	sess, _ := s.Get("u1")
	if sess.LastListingGeneratedAt != 555 || sess.LastListingPageViewed != 2 {
		t.Errorf("listing guard = %+v", sess)
	}
}
