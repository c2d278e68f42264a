package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// replyTimeout bounds the outbound reply call. The platform voids reply
// tokens quickly, so there is no point waiting longer.
const replyTimeout = 10 * time.Second

// WebhookReplier posts reply messages back to a chat platform's reply
// endpoint. The reply token from the inbound event authorizes exactly
// one reply to that conversation turn.
type WebhookReplier struct {
	Endpoint string
	Token    string // bearer token, optional
	Client   *http.Client
}

// NewWebhookReplier creates a WebhookReplier.
func NewWebhookReplier(endpoint, token string) (*WebhookReplier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("chat: webhook replier: endpoint is required")
	}
	return &WebhookReplier{
		Endpoint: endpoint,
		Token:    token,
		Client:   &http.Client{Timeout: replyTimeout},
	}, nil
}

// wireMessage is the JSON shape of one outbound message.
type wireMessage struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Items []Choice   `json:"items,omitempty"`
	Cards []wireCard `json:"cards,omitempty"`
}

type wireCard struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Buttons []Choice `json:"buttons"`
}

// Reply posts the messages to the reply endpoint as a single call.
func (r *WebhookReplier) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	wire := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		switch msg := m.(type) {
		case Text:
			wire = append(wire, wireMessage{Type: "text", Text: msg.Text})
		case Choices:
			wire = append(wire, wireMessage{Type: "choices", Text: msg.Text, Items: msg.Items})
		case Carousel:
			cards := make([]wireCard, len(msg.Cards))
			for i, card := range msg.Cards {
				cards[i] = wireCard{Title: card.Title, Body: card.Body, Buttons: card.Buttons}
			}
			wire = append(wire, wireMessage{Type: "carousel", Cards: cards})
		default:
			return fmt.Errorf("chat: webhook replier: unknown message type %T", m)
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"replyToken": replyToken,
		"messages":   wire,
	})
	if err != nil {
		return fmt.Errorf("chat: webhook replier: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chat: webhook replier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: replyTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("chat: webhook replier: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat: webhook replier: reply endpoint returned %d", resp.StatusCode)
	}
	return nil
}
