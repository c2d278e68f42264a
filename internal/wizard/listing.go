package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anit-serv/greenroom/internal/chat"
	"github.com/anit-serv/greenroom/internal/models"
)

// listPageSize is how many booking cards one carousel page carries; the
// optional "show more" card rides along as an extra.
const listPageSize = 9

// startListing is the "my bookings" trigger: it mints a fresh listing
// generation, voids every control issued before it, and renders page 0.
//
// The generation stamp doubles as the issue time of the new carousel's
// buttons, so the watermark is advanced to one millisecond short of it:
// older carousels die, the new one stays pressable.
func (w *Wizard) startListing(ctx context.Context, userID, replyToken string, sess *models.Session) {
	now := w.now()
	gen := issueStamp(now, watermark(sess))
	if err := w.sessions.AdvanceWatermark(userID, gen-1); err != nil {
		w.replyFailure(ctx, replyToken, err)
		return
	}
	w.renderListing(ctx, userID, replyToken, 0, gen)
}

// showMore handles a "show more" press. The forward-only guard: a press
// is honored only when it moves strictly forward within the current
// generation, or belongs to a newer generation than any seen. Redelivered
// or re-pressed cards from pages already viewed fall through to a notice.
func (w *Wizard) showMore(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p ShowMore) {
	var lastGen int64
	var lastPage int
	if sess != nil {
		lastGen = sess.LastListingGeneratedAt
		lastPage = sess.LastListingPageViewed
	}
	forward := (p.Generation == lastGen && p.Page > lastPage) || p.Generation > lastGen
	if !forward {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgOldList})
		return
	}
	w.renderListing(ctx, ev.UserID, ev.ReplyToken, p.Page, p.Generation)
}

// renderListing sends one page of the user's bookings as a card carousel
// and records the page as viewed.
func (w *Wizard) renderListing(ctx context.Context, userID, replyToken string, page int, gen int64) {
	bookings, err := w.bookings.ByUser(userID)
	if err != nil {
		w.replyFailure(ctx, replyToken, err)
		return
	}
	if len(bookings) == 0 {
		w.reply(ctx, replyToken, chat.Text{Text: "You have no bookings. Send 'register' to make one."})
		return
	}
	start := page * listPageSize
	if start >= len(bookings) {
		w.reply(ctx, replyToken, chat.Text{Text: msgOldList})
		return
	}

	blackout, err := w.policy.InBlackout(w.now())
	if err != nil {
		w.replyFailure(ctx, replyToken, err)
		return
	}
	if err := w.sessions.RecordListing(userID, gen, page); err != nil {
		w.replyFailure(ctx, replyToken, err)
		return
	}

	end := min(start+listPageSize, len(bookings))
	cards := make([]chat.Card, 0, end-start+1)
	for _, b := range bookings[start:end] {
		cards = append(cards, listingCard(b, gen, blackout))
	}
	if end < len(bookings) {
		cards = append(cards, chat.Card{
			Title: "More bookings",
			Body:  fmt.Sprintf("%d more not shown.", len(bookings)-end),
			Buttons: []chat.Choice{{
				Label: "Show more",
				Data:  Encode(ShowMore{Page: page + 1, Generation: gen}),
			}},
		})
	}

	msgs := []chat.Message{chat.Carousel{Cards: cards}}
	if blackout {
		msgs = append([]chat.Message{chat.Text{Text: msgBlackout}}, msgs...)
	}
	w.reply(ctx, replyToken, msgs...)
}

// listingCard renders one booking as a card. During the blackout the
// action buttons are replaced with a single inert placeholder; chat
// platforms cannot render a card with zero buttons.
func listingCard(b models.Booking, gen int64, blackout bool) chat.Card {
	card := chat.Card{
		Title: b.Label,
		Body:  b.SlotKey + "\n" + bookingStatusLine(b),
	}
	if blackout {
		card.Buttons = []chat.Choice{{Label: "Paused for the draw", Data: Encode(Noop{})}}
		return card
	}
	issued := time.UnixMilli(gen)
	card.Buttons = []chat.Choice{
		{Label: "Edit name", Data: Encode(EditName{BookingID: b.ID, IssuedAt: issued})},
		{Label: "Change slot", Data: Encode(EditSlot{BookingID: b.ID, IssuedAt: issued})},
		{Label: "Delete", Data: Encode(DeleteStart{BookingID: b.ID, IssuedAt: issued})},
	}
	return card
}

// bookingStatusLine renders a booking's draw state for display.
func bookingStatusLine(b models.Booking) string {
	switch b.Status {
	case models.BookingRanked:
		return fmt.Sprintf("drawn #%d of %d", b.Rank, b.RankTotal)
	case models.BookingConfirmed:
		return fmt.Sprintf("confirmed #%d of %d", b.Rank, b.RankTotal)
	default:
		return "awaiting draw"
	}
}

// --- view all ---

// startViewAll is the "view all" trigger: a read-only day summary across
// all users. Available during the blackout.
func (w *Wizard) startViewAll(ctx context.Context, ev chat.TextEvent, sess *models.Session) {
	now := w.now()
	dates, err := w.policy.ViewableDates(now)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if len(dates) == 0 {
		w.reply(ctx, ev.ReplyToken, chat.Text{Text: msgNoDates})
		return
	}

	issued := time.UnixMilli(issueStamp(now, watermark(sess)))
	items := make([]chat.Choice, len(dates))
	for i, d := range dates {
		items[i] = chat.Choice{
			Label: d.Label,
			Data:  Encode(ViewAllDate{Date: d.Key, IssuedAt: issued}),
		}
	}
	if err := w.setStepWithChoices(ev.UserID, map[string]interface{}{
		"status":             models.StepAwaitingViewAllDate,
		"session_started_at": now,
	}, items, now); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Choices{Text: "Which date do you want to see?", Items: items})
}

func (w *Wizard) pickViewAllDate(ctx context.Context, ev chat.ButtonEvent, sess *models.Session, p ViewAllDate) {
	if sess == nil || sess.Status != models.StepAwaitingViewAllDate {
		w.replyNotCurrent(ctx, ev, sess)
		return
	}
	if w.stepTimedOut(ctx, ev, sess) {
		return
	}
	if !w.fresh(ctx, ev, sess, p.IssuedAt) {
		return
	}

	bookings, err := w.bookings.BySlotPrefix(p.Date)
	if err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	if err := w.sessions.ClearWizard(ev.UserID); err != nil {
		w.replyFailure(ctx, ev.ReplyToken, err)
		return
	}
	w.reply(ctx, ev.ReplyToken, chat.Text{Text: renderDaySummary(p.Date, bookings)})
}

// renderDaySummary formats every booking on a date, grouped per time
// slot. A slot where the draw has run lists bands in drawn order; a slot
// still holding pending bookings lists them unordered with a note.
func renderDaySummary(date string, bookings []models.Booking) string {
	if len(bookings) == 0 {
		return fmt.Sprintf("No bookings on %s yet.", date)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Bookings on %s:\n", date)
	i := 0
	for i < len(bookings) {
		slot := bookings[i].SlotKey
		j := i
		drawn := true
		for j < len(bookings) && bookings[j].SlotKey == slot {
			if bookings[j].Status == models.BookingPending {
				drawn = false
			}
			j++
		}
		timeRange := strings.TrimPrefix(slot, date+" ")
		if drawn {
			fmt.Fprintf(&sb, "\n%s\n", timeRange)
			for n, b := range bookings[i:j] {
				fmt.Fprintf(&sb, "  %d. %s\n", n+1, b.Label)
			}
		} else {
			fmt.Fprintf(&sb, "\n%s (order not yet drawn)\n", timeRange)
			for _, b := range bookings[i:j] {
				fmt.Fprintf(&sb, "  - %s\n", b.Label)
			}
		}
		i = j
	}
	return strings.TrimRight(sb.String(), "\n")
}
