// Package notify posts operational announcements to a Slack incoming
// webhook. Delivery is best effort: a failed post is logged, never
// propagated, because the draw itself must not depend on Slack being up.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/anit-serv/greenroom/internal/lottery"
)

// Notifier posts to a Slack incoming webhook. A zero WebhookURL turns
// every method into a no-op, so callers never need to branch on
// whether notifications are configured.
type Notifier struct {
	WebhookURL string
}

// New creates a Notifier. An empty url is allowed and disables posting.
func New(webhookURL string) *Notifier {
	return &Notifier{WebhookURL: webhookURL}
}

// RankCompleted announces the outcome of a rank pass.
func (n *Notifier) RankCompleted(ctx context.Context, res lottery.RankResult, now time.Time) {
	if res.Slots == 0 {
		n.post(ctx, fmt.Sprintf("Draw %s: nothing to draw.", now.Format("2006-01-02")))
		return
	}
	n.post(ctx, fmt.Sprintf("Draw %s: ordered %d bookings across %d slots.",
		now.Format("2006-01-02"), res.Bookings, res.Slots))
}

// ConfirmCompleted announces the outcome of a confirm pass.
func (n *Notifier) ConfirmCompleted(ctx context.Context, res lottery.ConfirmResult, now time.Time) {
	msg := fmt.Sprintf("Draw confirmation %s: %d confirmed", now.Format("2006-01-02"), res.Confirmed)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped (deleted or renamed since the draw)", res.Skipped)
	}
	n.post(ctx, msg+".")
}

// PassFailed announces a failed lottery pass.
func (n *Notifier) PassFailed(ctx context.Context, pass string, err error) {
	n.post(ctx, fmt.Sprintf("Lottery %s pass failed: %v", pass, err))
}

func (n *Notifier) post(ctx context.Context, text string) {
	if n.WebhookURL == "" {
		return
	}
	err := slackapi.PostWebhookContext(ctx, n.WebhookURL, &slackapi.WebhookMessage{Text: text})
	if err != nil {
		log.Printf("notify: post webhook: %v", err)
	}
}
