// Package discord runs the booking wizard over the Discord Gateway.
// Free-form messages become text events, message-component button
// presses become button events, and replies are posted back to the
// originating channel.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anit-serv/greenroom/internal/chat"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}

// Adapter connects the wizard to Discord. It is both the event source
// (dispatching inbound events to a chat.Handler) and the chat.Replier
// (the reply token is the channel id the event arrived on).
type Adapter struct {
	sess      session
	botToken  string
	channelID string // restrict to one channel when set

	mu        sync.Mutex
	connected bool
	closed    bool
	botUserID string
	handler   chat.Handler
	removers  []func()
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // only react to messages in this channel; empty means all
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		sess:      opts.Session,
		botToken:  opts.BotToken,
		channelID: opts.ChannelID,
	}, nil
}

// Start opens the Gateway connection and begins dispatching events to
// the handler. Each event is handled on the discordgo callback
// goroutine; the handler must be safe for concurrent calls.
func (a *Adapter) Start(ctx context.Context, handler chat.Handler) error {
	if handler == nil {
		return fmt.Errorf("discord: handler is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}
	a.handler = handler

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		a.sess = &realSession{s: dg}
	}

	a.removers = append(a.removers,
		a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			a.mu.Lock()
			a.botUserID = r.User.ID
			a.mu.Unlock()
			log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			a.handleMessage(ctx, m)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			a.handleInteraction(ctx, i)
		}),
	)

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Close shuts down the Gateway connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removers {
		remove()
	}
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// handleMessage converts a Discord message to a text event.
func (a *Adapter) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	botID := a.botUserID
	handler := a.handler
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}
	if a.channelID != "" && m.ChannelID != a.channelID {
		return
	}
	handler.HandleText(ctx, chat.TextEvent{
		UserID:     m.Author.ID,
		ReplyToken: m.ChannelID,
		Text:       m.Content,
	})
}

// handleInteraction converts a component press to a button event. The
// interaction is acknowledged with a deferred update first; the actual
// answer goes out as a regular channel message through Reply.
func (a *Adapter) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	if a.channelID != "" && i.ChannelID != a.channelID {
		return
	}

	if err := a.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		log.Printf("discord: ack interaction: %v", err)
	}

	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	handler.HandleButton(ctx, chat.ButtonEvent{
		UserID:     user.ID,
		ReplyToken: i.ChannelID,
		Data:       i.MessageComponentData().CustomID,
	})
}

// Reply implements chat.Replier: the reply token is a channel id.
func (a *Adapter) Reply(ctx context.Context, replyToken string, msgs ...chat.Message) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	for _, msg := range msgs {
		for _, data := range buildMessageSends(msg) {
			err := a.retryOnRateLimit(ctx, func() error {
				_, sendErr := a.sess.ChannelMessageSendComplex(replyToken, data)
				return sendErr
			})
			if err != nil {
				return fmt.Errorf("discord: send message: %w", err)
			}
		}
	}
	return nil
}

// buildMessageSends translates one reply message into Discord sends. A
// carousel becomes one message per card: components attach per message,
// so a multi-card carousel cannot ride in a single send.
func buildMessageSends(msg chat.Message) []*discordgo.MessageSend {
	switch m := msg.(type) {
	case chat.Text:
		return []*discordgo.MessageSend{{Content: m.Text}}
	case chat.Choices:
		return []*discordgo.MessageSend{{
			Content:    m.Text,
			Components: buttonRows(m.Items),
		}}
	case chat.Carousel:
		sends := make([]*discordgo.MessageSend, 0, len(m.Cards))
		for _, card := range m.Cards {
			sends = append(sends, &discordgo.MessageSend{
				Embeds: []*discordgo.MessageEmbed{{
					Title:       card.Title,
					Description: card.Body,
				}},
				Components: buttonRows(card.Buttons),
			})
		}
		return sends
	default:
		return nil
	}
}

// buttonRows lays choices out as action rows, five buttons per row
// (the Discord component limit).
func buttonRows(items []chat.Choice) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(items); start += 5 {
		end := min(start+5, len(items))
		row := discordgo.ActionsRow{}
		for _, item := range items[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    item.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: item.Data,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// retryOnRateLimit calls fn and retries with exponential backoff on
// Discord rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
