// Package wizard implements the conversational booking state machine:
// it interprets each inbound chat event against the user's session,
// decides the next step, and emits exactly one reply per event.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anit-serv/greenroom/internal/availability"
	"github.com/anit-serv/greenroom/internal/chat"
	"github.com/anit-serv/greenroom/internal/models"
	"github.com/anit-serv/greenroom/internal/store"
)

// Trigger phrases. These double as the reserved-word set: free text that
// is supposed to be a band name may not collide with any of them.
const (
	triggerRegister   = "register"
	triggerMyBookings = "my bookings"
	triggerViewAll    = "view all"
	triggerCancel     = "cancel"
	triggerHelp       = "help"
)

var reservedWords = map[string]bool{
	triggerRegister:   true,
	triggerMyBookings: true,
	triggerViewAll:    true,
	triggerCancel:     true,
	triggerHelp:       true,
}

// maxLabelLen caps band names to the column width.
const maxLabelLen = 64

// Reply texts.
const (
	msgCancelled = "Okay, cancelled. Nothing was changed."
	msgTimeout   = "Your session timed out after 5 minutes. Send 'register' to start over."
	msgAskName   = "What's your band name?"
	msgReserved  = "That name is a command word here — please choose a different band name."
	msgTooLong   = "That name is too long (64 characters max) — please choose a shorter one."
	msgNoDates   = "There are no bookable dates in the coming week. Please try again later."
	msgNoSlots   = "No time slots are configured right now. Please try again later."
	msgBlackout  = "Bookings are paused during the nightly blackout while the draw is prepared. Viewing is still available; please try again afterwards."
	msgGone      = "That booking no longer exists. Send 'my bookings' for a current list."
	msgExpired   = "That button has expired. Send 'register' or 'my bookings' to continue."
	msgStale     = "That button is no longer valid."
	msgReoffer   = "That button is no longer valid — please choose again:"
	msgOldList   = "That list is out of date. Send 'my bookings' for a fresh one."
	msgTryAgain  = "Something went wrong on our side — please try again in a moment."
	msgHelp      = "Commands: 'register' to book a slot, 'my bookings' to list yours, " +
		"'view all' to see a whole day, 'cancel' to abandon the current step."
	msgUnknown = "I didn't understand that. " + msgHelp
)

// Wizard drives the booking dialogue. It is safe for concurrent calls
// with the same user: correctness rests on the session watermark, not on
// in-process locking.
type Wizard struct {
	bookings *store.Bookings
	sessions *store.Sessions
	policy   *availability.Policy
	replier  chat.Replier
	out      io.Writer
	now      func() time.Time
}

// Opts holds parameters for creating a Wizard.
type Opts struct {
	Bookings *store.Bookings
	Sessions *store.Sessions
	Policy   *availability.Policy
	Replier  chat.Replier
	Out      io.Writer        // defaults to os.Stdout
	Now      func() time.Time // defaults to time.Now
}

// New creates a Wizard.
func New(opts Opts) (*Wizard, error) {
	if opts.Bookings == nil {
		return nil, fmt.Errorf("wizard: bookings store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("wizard: sessions store is required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("wizard: availability policy is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("wizard: replier is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Wizard{
		bookings: opts.Bookings,
		sessions: opts.Sessions,
		policy:   opts.Policy,
		replier:  opts.Replier,
		out:      out,
		now:      now,
	}, nil
}

// HandleText processes a free-text message. Routing order:
//  1. "cancel" — highest priority, bypasses reserved-word and blackout checks
//  2. session timeout — an expired step answers with the timeout notice
//  3. free-text steps (band name entry, rename) with the reserved-word check
//  4. trigger phrases
//  5. everything else — corrective reply
func (w *Wizard) HandleText(ctx context.Context, ev chat.TextEvent) {
	text := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(text)
	fmt.Fprintf(w.out, "wizard: text [user=%s] %q\n", ev.UserID, truncate(text, 60))

	sess, err := w.sessions.Get(ev.UserID)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}

	if lower == triggerCancel {
		if sess != nil {
			if err := w.sessions.ClearWizard(ev.UserID); err != nil {
				w.replyFailure(ctx, ev.ReplyToken, err)
				return
			}
		}
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgCancelled})
		return
	}

	if sess != nil && sess.Status != "" && sessionTimedOut(w.now(), sess) {
		if err := w.sessions.ClearWizard(ev.UserID); err != nil {
			w.replyFailure(ctx, ev.ReplyToken, err)
			return
		}
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgTimeout})
		return
	}

	if sess != nil && (sess.Status == models.StepAwaitingName || sess.Status == models.StepEditingName) {
		if reservedWords[lower] {
			w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgReserved})
			return
		}
		if len(text) > maxLabelLen {
			w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgTooLong})
			return
		}
		if sess.Status == models.StepAwaitingName {
			w.receiveBandName(ctx, ev, sess, text)
		} else {
			w.receiveNewLabel(ctx, ev, sess, text)
		}
		return
	}

	switch lower {
	case triggerRegister:
		w.startRegistration(ctx, ev, sess)
	case triggerMyBookings:
		w.startListing(ctx, ev.UserID, ev.ReplyToken, sess)
	case triggerViewAll:
		w.startViewAll(ctx, ev, sess)
	case triggerHelp:
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgHelp})
	default:
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgUnknown})
	}
}

// HandleButton processes a button press. The payload is parsed once into
// its variant; each variant handler applies the freshness guard and any
// state requirement itself.
func (w *Wizard) HandleButton(ctx context.Context, ev chat.ButtonEvent) {
	payload, err := ParsePayload(ev.Data)
	if err != nil {
		log.Printf("wizard: %v", err)
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgUnknown})
		return
	}
	fmt.Fprintf(w.out, "wizard: button [user=%s] %s\n", ev.UserID, payload.action())

	if _, ok := payload.(Noop); ok {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgBlackout})
		return
	}

	sess, err := w.sessions.Get(ev.UserID)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}

	switch p := payload.(type) {
	case RegisterDate:
		w.pickRegisterDate(ctx, ev, sess, p)
	case RegisterTime:
		w.pickRegisterTime(ctx, ev, sess, p)
	case ShowMore:
		w.showMore(ctx, ev, sess, p)
	case EditName:
		w.startEditName(ctx, ev, sess, p)
	case EditSlot:
		w.startEditSlot(ctx, ev, sess, p)
	case EditDate:
		w.pickEditDate(ctx, ev, sess, p)
	case EditTime:
		w.pickEditTime(ctx, ev, sess, p)
	case ViewAllDate:
		w.pickViewAllDate(ctx, ev, sess, p)
	case DeleteStart:
		w.startDelete(ctx, ev, sess, p)
	case DeleteConfirm:
		w.confirmDelete(ctx, ev, sess, p)
	case DeleteCancel:
		w.cancelDelete(ctx, ev, sess, p)
	}
}

// --- registration flow ---

func (w *Wizard) startRegistration(ctx context.Context, ev chat.TextEvent, sess *models.Session) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	now := w.now()
	started := time.UnixMilli(issueStamp(now, watermark(sess)))
	if err := w.setStep(ev.UserID, map[string]interface{}{
		"status":             models.StepAwaitingName,
		"session_started_at": started,
	}); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgAskName})
}

func (w *Wizard) receiveBandName(ctx context.Context, ev chat.TextEvent, sess *models.Session, band string) {
	now := w.now()
	dates, err := w.policy.EligibleDates(now)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if len(dates) == 0 {
		w.sessions.ClearWizard(ev.UserID)
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgNoDates})
		return
	}

	startedAt := now
	if sess.SessionStartedAt != nil {
		startedAt = *sess.SessionStartedAt
	}
	items := make([]chat.Choice, len(dates))
	for i, d := range dates {
		items[i] = chat.Choice{
			Label: d.Label,
			Data:  Encode(RegisterDate{Band: band, Date: d.Key, StartedAt: startedAt}),
		}
	}
	if err := w.storeOffered(ev.UserID, items, now); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Choices{
		Text:  fmt.Sprintf("Which date for %s?", band),
		Items: items,
	})
}

func (w *Wizard) pickRegisterDate(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p RegisterDate) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.StartedAt) {
		return
	}
	now := w.now()
	slots, err := w.policy.TimeSlots(now)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if len(slots) == 0 {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgNoSlots})
		return
	}

	items := make([]chat.Choice, len(slots))
	for i, s := range slots {
		items[i] = chat.Choice{
			Label: s.Label,
			Data:  Encode(RegisterTime{Band: p.Band, Date: p.Date, Slot: s.Value, StartedAt: p.StartedAt}),
		}
	}
	if err := w.storeOffered(ev.UserID, items, now); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Choices{
		Text:  fmt.Sprintf("Which time on %s for %s?", p.Date, p.Band),
		Items: items,
	})
}

func (w *Wizard) pickRegisterTime(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p RegisterTime) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.StartedAt) {
		return
	}

	// Advance the watermark before the mutation: the transport redelivers
	// timed-out events, and a redelivered press must come back superseded.
	now := w.now()
	if err := w.sessions.AdvanceWatermark(ev.UserID, issueStamp(now, watermark(sess))); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}

	slotKey := p.Date + " " + p.Slot
	booking := &models.Booking{
		UserID:  ev.UserID,
		Label:   p.Band,
		SlotKey: slotKey,
		Status:  models.BookingPending,
	}
	if err := w.bookings.Insert(booking); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		log.Printf("wizard: clear after booking: %v", err)
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{
		Text: fmt.Sprintf("Booking received: %s on %s. The nightly draw decides the order — check 'my bookings' for results.", p.Band, slotKey),
	})
}

// --- edit flows ---

func (w *Wizard) receiveNewLabel(ctx context.Context, ev chat.TextEvent, sess *models.Session, label string) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if sess.EditingBookingID == nil {
		w.sessions.ClearWizard(ev.UserID)
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgGone})
		return
	}
	ok, err := w.bookings.Update(*sess.EditingBookingID, map[string]interface{}{"label": label})
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if !ok {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgGone})
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: fmt.Sprintf("Renamed to %q.", label)})
}

func (w *Wizard) startEditName(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p EditName) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}
	booking := w.ownedBooking(ctx, ev, p.BookingID)
	if booking == nil {
		return
	}

	now := w.now()
	acceptMs := issueStamp(now, watermark(sess))
	if err := w.sessions.AdvanceWatermark(ev.UserID, acceptMs); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.setStep(ev.UserID, map[string]interface{}{
		"status":             models.StepEditingName,
		"editing_booking_id": p.BookingID,
		"session_started_at": now,
	}); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: fmt.Sprintf("Send the new band name for %q.", booking.Label)})
}

func (w *Wizard) startEditSlot(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p EditSlot) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}
	booking := w.ownedBooking(ctx, ev, p.BookingID)
	if booking == nil {
		return
	}

	now := w.now()
	dates, err := w.policy.EligibleDates(now)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if len(dates) == 0 {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgNoDates})
		return
	}

	acceptMs := issueStamp(now, watermark(sess))
	if err := w.sessions.AdvanceWatermark(ev.UserID, acceptMs); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	issued := time.UnixMilli(issueStamp(now, acceptMs))
	items := make([]chat.Choice, len(dates))
	for i, d := range dates {
		items[i] = chat.Choice{
			Label: d.Label,
			Data:  Encode(EditDate{Date: d.Key, IssuedAt: issued}),
		}
	}
	if err := w.setStepWithChoices(ev.UserID, map[string]interface{}{
		"status":             models.StepAwaitingEditDate,
		"editing_booking_id": p.BookingID,
		"session_started_at": now,
	}, items, now); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Choices{
		Text:  fmt.Sprintf("Pick a new date for %q.", booking.Label),
		Items: items,
	})
}

func (w *Wizard) pickEditDate(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p EditDate) {
	if sess == nil || sess.Status != models.StepAwaitingEditDate || sess.EditingBookingID == nil {
		w.replyNotCurrent(ctx, ev, sess)
		return
	}
	if w.stepTimedOut(ctx, ev, sess) {
		return
	}
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}

	now := w.now()
	slots, err := w.policy.TimeSlots(now)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if len(slots) == 0 {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgNoSlots})
		return
	}

	issued := time.UnixMilli(issueStamp(now, watermark(sess)))
	items := make([]chat.Choice, len(slots))
	for i, s := range slots {
		items[i] = chat.Choice{
			Label: s.Label,
			Data:  Encode(EditTime{Slot: s.Value, IssuedAt: issued}),
		}
	}
	choicesJSON, err := json.Marshal(items)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	// Merge, not setStep: editing_booking_id must survive into the next step.
	if err := w.sessions.Merge(ev.UserID, map[string]interface{}{
		"status":                    models.StepAwaitingEditTime,
		"editing_selected_date":     p.Date,
		"offered_choices":           string(choicesJSON),
		"offered_choices_issued_at": now,
	}); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Choices{
		Text:  fmt.Sprintf("Which time on %s?", p.Date),
		Items: items,
	})
}

func (w *Wizard) pickEditTime(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p EditTime) {
	if sess == nil || sess.Status != models.StepAwaitingEditTime ||
		sess.EditingBookingID == nil || sess.EditingSelectedDate == "" {
		w.replyNotCurrent(ctx, ev, sess)
		return
	}
	if w.stepTimedOut(ctx, ev, sess) {
		return
	}
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}

	now := w.now()
	if err := w.sessions.AdvanceWatermark(ev.UserID, issueStamp(now, watermark(sess))); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	slotKey := sess.EditingSelectedDate + " " + p.Slot
	ok, err := w.bookings.Update(*sess.EditingBookingID, map[string]interface{}{"slot_key": slotKey})
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if !ok {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgGone})
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: fmt.Sprintf("Moved to %s.", slotKey)})
}

// --- delete flow ---

func (w *Wizard) startDelete(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p DeleteStart) {
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}
	booking := w.ownedBooking(ctx, ev, p.BookingID)
	if booking == nil {
		return
	}

	now := w.now()
	acceptMs := issueStamp(now, watermark(sess))
	if err := w.sessions.AdvanceWatermark(ev.UserID, acceptMs); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	// The confirm pair must carry a timestamp strictly later than the
	// watermark we just advanced, or it would supersede itself.
	issued := time.UnixMilli(issueStamp(now, acceptMs))
	items := []chat.Choice{
		{Label: "Yes, delete", Data: Encode(DeleteConfirm{BookingID: p.BookingID, IssuedAt: issued})},
		{Label: "Keep it", Data: Encode(DeleteCancel{IssuedAt: issued})},
	}
	if err := w.setStepWithChoices(ev.UserID, map[string]interface{}{
		"status":              models.StepAwaitingDeleteConfirm,
		"deleting_booking_id": p.BookingID,
		"deleting_label":      booking.Label,
		"session_started_at":  now,
	}, items, now); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Choices{
		Text:  fmt.Sprintf("Delete %q (%s)? This cannot be undone.", booking.Label, booking.SlotKey),
		Items: items,
	})
}

func (w *Wizard) confirmDelete(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p DeleteConfirm) {
	if sess == nil || sess.Status != models.StepAwaitingDeleteConfirm ||
		sess.DeletingBookingID == nil || *sess.DeletingBookingID != p.BookingID {
		w.replyNotCurrent(ctx, ev, sess)
		return
	}
	if w.stepTimedOut(ctx, ev, sess) {
		return
	}
	if w.blackoutBlocked(ctx, ev.ReplyToken) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}

	label := sess.DeletingLabel
	now := w.now()
	// Watermark first: a redelivered confirm must be superseded, and a
	// duplicate that squeaks past anyway only re-deletes a missing row.
	if err := w.sessions.AdvanceWatermark(ev.UserID, issueStamp(now, watermark(sess))); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if _, err := w.bookings.Delete(p.BookingID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: fmt.Sprintf("Deleted %q.", label)})
}

func (w *Wizard) cancelDelete(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p DeleteCancel) {
	if sess == nil || sess.Status != models.StepAwaitingDeleteConfirm {
		w.replyNotCurrent(ctx, ev, sess)
		return
	}
	if w.stepTimedOut(ctx, ev, sess) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}
	label := sess.DeletingLabel
	now := w.now()
	if err := w.sessions.AdvanceWatermark(ev.UserID, issueStamp(now, watermark(sess))); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: fmt.Sprintf("Kept %q.", label)})
}

// --- shared helpers ---

// fresh applies the freshness guard. On rejection it attempts graceful
// recovery: the transport cannot retract a stale control, so when the
// session still holds a live choice set, that exact set is re-sent.
func (w *Wizard) fresh(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, issued time.Time) bool {
	now := w.now()
	verdict := CheckFreshness(now, issued, sess)
	if verdict == VerdictValid {
		return true
	}
	log.Printf("wizard: button from %s rejected: %s", ev.UserID, verdict)
	w.rejectWith(ctx, ev, sess, verdict)
	return false
}

// replyNotCurrent handles a button whose step requirement failed: the
// session moved on since it was issued. Same recovery as a stale press.
func (w *Wizard) replyNotCurrent(ctx context.Context, ev chat.ButtonEvent, sess *models.Session) {
	w.rejectWith(ctx, ev, sess, VerdictSuperseded)
}

func (w *Wizard) rejectWith(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, verdict Verdict) {
	if choicesFresh(w.now(), sess) {
		var items []chat.Choice
		if err := json.Unmarshal([]byte(sess.OfferedChoices), &items); err == nil && len(items) > 0 {
			w.reply(ctx, ev.ReplyToken, chat.Choices{Text: msgReoffer, Items: items})
			return
		}
	}
	if verdict == VerdictExpired {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgExpired})
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgStale + " " + msgHelp})
}

// stepTimedOut checks the session timeout for button-driven steps,
// clearing the wizard and replying when it has fired.
func (w *Wizard) stepTimedOut(ctx context.Context, ev chat.ButtonEvent, sess *models.Session) bool {
	if !sessionTimedOut(w.now(), sess) {
		return false
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return true
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgTimeout})
	return true
}

// blackoutBlocked refuses booking-mutating operations during the
// blackout window. Pure reads never come through here.
func (w *Wizard) blackoutBlocked(ctx context.Context, replyToken string) bool {
	blackout, err := w.policy.InBlackout(w.now())
	if err != nil {
		w.replyFailure(ctx, replyToken, err)
		return true
	}
	if blackout {
		w.reply(ctx, replyToken, chat.Text{Text: msgBlackout})
		return true
	}
	return false
}

// ownedBooking loads a booking and verifies it belongs to the pressing
// user. Replies and returns nil when it is gone or foreign.
func (w *Wizard) ownedBooking(ctx context.Context, ev chat.ButtonEvent, id uint) *models.Booking {
	booking, err := w.bookings.Get(id)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return nil
	}
	if booking == nil || booking.UserID != ev.UserID {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgGone})
		return nil
	}
	return booking
}

// setStep writes a wizard step transition as one atomic unit: every
// payload field is cleared first, then the new step's fields are set.
func (w *Wizard) setStep(userID string, fields map[string]interface{}) error {
	base := map[string]interface{}{
		"status":                    "",
		"session_started_at":        nil,
		"editing_booking_id":        nil,
		"editing_selected_date":     "",
		"deleting_booking_id":       nil,
		"deleting_label":            "",
		"offered_choices":           "",
		"offered_choices_issued_at": nil,
	}
	for k, v := range fields {
		base[k] = v
	}
	return w.sessions.Merge(userID, base)
}

// setStepWithChoices is setStep plus the offered-choices record.
func (w *Wizard) setStepWithChoices(userID string, fields map[string]interface{}, items []chat.Choice, now time.Time) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("wizard: encode choices: %w", err)
	}
	fields["offered_choices"] = string(data)
	fields["offered_choices_issued_at"] = now
	return w.setStep(userID, fields)
}

// storeOffered records the last choice set sent to the user without
// touching the rest of the step.
func (w *Wizard) storeOffered(userID string, items []chat.Choice, now time.Time) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("wizard: encode choices: %w", err)
	}
	return w.sessions.Merge(userID, map[string]interface{}{
		"offered_choices":           string(data),
		"offered_choices_issued_at": now,
	})
}

func (w *Wizard) reply(ctx context.Context, replyToken string, msgs ...chat.Message) {
	if err := w.replier.Reply(ctx, replyToken, msgs...); err != nil {
		log.Printf("wizard: send reply: %v", err)
	}
}

// replyFailure logs a collaborator failure and sends the generic
// retry-suggesting message. The in-flight transition is not committed.
func (w *Wizard) replyFailure(ctx context.Context, replyToken string, err error) {
	log.Printf("wizard: %v", err)
	w.reply(ctx, replyToken, chat.Text{Text: msgTryAgain})
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
