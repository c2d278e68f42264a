// Package chat defines the transport contract between the booking wizard
// and chat platforms: inbound text/button events, outbound reply messages,
// and the Replier interface concrete transports implement.
//
// The transport is stateless and at-least-once: events for the same user
// may arrive concurrently, out of order, or twice, and an interactive
// control that was sent can never be retracted or disabled. Everything
// the wizard needs to survive that lives in the session record, not here.
package chat

import "context"

// TextEvent is a free-text message from a user.
type TextEvent struct {
	UserID     string `json:"userId"`
	ReplyToken string `json:"replyToken"`
	Text       string `json:"text"`
}

// ButtonEvent is a press of an interactive control. Data is the opaque
// payload string that was attached to the control when it was sent,
// echoed back verbatim by the platform.
type ButtonEvent struct {
	UserID     string `json:"userId"`
	ReplyToken string `json:"replyToken"`
	Data       string `json:"data"`
}

// Handler consumes inbound events. Each event is handled on its own
// goroutine; implementations must be safe for concurrent calls with the
// same user id.
type Handler interface {
	HandleText(ctx context.Context, ev TextEvent)
	HandleButton(ctx context.Context, ev ButtonEvent)
}

// Message is an outbound reply message.
type Message interface {
	isMessage()
}

// Text is a plain text reply.
type Text struct {
	Text string
}

// Choice is one selectable option: a display label plus the opaque
// payload echoed back on press.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Choices is a text message carrying a bounded set of selectable options.
type Choices struct {
	Text  string
	Items []Choice
}

// Card is a single listing card: title, body text, up to 3 action buttons.
type Card struct {
	Title   string
	Body    string
	Buttons []Choice
}

// Carousel is a multi-card listing.
type Carousel struct {
	Cards []Card
}

func (Text) isMessage()     {}
func (Choices) isMessage()  {}
func (Carousel) isMessage() {}

// Replier delivers reply messages for an inbound event. The reply token
// identifies the conversation turn being answered; transports impose a
// short latency budget between receiving an event and replying.
type Replier interface {
	Reply(ctx context.Context, replyToken string, msgs ...Message) error
}
