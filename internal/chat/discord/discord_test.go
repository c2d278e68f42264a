package discord

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/anit-serv/greenroom/internal/chat"
)

// mockSession records sends and registered handlers without touching the
// Discord API.
type mockSession struct {
	mu       sync.Mutex
	sends    []*discordgo.MessageSend
	channels []string
	handlers []interface{}
	acks     int
}

func (m *mockSession) Open() error  { return nil }
func (m *mockSession) Close() error { return nil }
func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {}
}
func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channelID)
	m.sends = append(m.sends, data)
	return &discordgo.Message{}, nil
}
func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks++
	return nil
}

type nopHandler struct {
	texts   []chat.TextEvent
	buttons []chat.ButtonEvent
}

func (h *nopHandler) HandleText(ctx context.Context, ev chat.TextEvent)     { h.texts = append(h.texts, ev) }
func (h *nopHandler) HandleButton(ctx context.Context, ev chat.ButtonEvent) { h.buttons = append(h.buttons, ev) }

func newStartedAdapter(t *testing.T, channelID string) (*Adapter, *mockSession, *nopHandler) {
	t.Helper()
	sess := &mockSession{}
	a, err := New(AdapterOpts{Session: sess, ChannelID: channelID})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	h := &nopHandler{}
	if err := a.Start(context.Background(), h); err != nil {
		t.Fatalf("start: %v", err)
	}
	return a, sess, h
}

func TestNewRequiresTokenOrSession(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error without token or injected session")
	}
	if _, err := New(AdapterOpts{BotToken: "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleMessageDispatchesText(t *testing.T) {
	a, _, h := newStartedAdapter(t, "")

	a.handleMessage(context.Background(), &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ChannelID: "C1",
			Content:   "register",
			Author:    &discordgo.User{ID: "u1"},
		},
	})
	if len(h.texts) != 1 {
		t.Fatalf("texts = %d", len(h.texts))
	}
	ev := h.texts[0]
	if ev.UserID != "u1" || ev.ReplyToken != "C1" || ev.Text != "register" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandleMessageFiltersBotsAndForeignChannels(t *testing.T) {
	a, _, h := newStartedAdapter(t, "C1")

	a.handleMessage(context.Background(), &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ChannelID: "C1",
			Content:   "hi",
			Author:    &discordgo.User{ID: "bot", Bot: true},
		},
	})
	a.handleMessage(context.Background(), &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ChannelID: "C2",
			Content:   "hi",
			Author:    &discordgo.User{ID: "u1"},
		},
	})
	if len(h.texts) != 0 {
		t.Errorf("filtered messages dispatched: %+v", h.texts)
	}
}

func TestHandleInteractionDispatchesButton(t *testing.T) {
	a, sess, h := newStartedAdapter(t, "")

	a.handleInteraction(context.Background(), &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionMessageComponent,
			ChannelID: "C1",
			Member:    &discordgo.Member{User: &discordgo.User{ID: "u1"}},
			Data:      discordgo.MessageComponentInteractionData{CustomID: "a=noop"},
		},
	})
	if len(h.buttons) != 1 {
		t.Fatalf("buttons = %d", len(h.buttons))
	}
	if h.buttons[0].Data != "a=noop" || h.buttons[0].ReplyToken != "C1" {
		t.Errorf("event = %+v", h.buttons[0])
	}
	if sess.acks != 1 {
		t.Errorf("interaction acks = %d", sess.acks)
	}
}

func TestReplyTranslatesMessages(t *testing.T) {
	a, sess, _ := newStartedAdapter(t, "")

	err := a.Reply(context.Background(), "C1",
		chat.Text{Text: "hello"},
		chat.Choices{Text: "pick", Items: []chat.Choice{{Label: "A", Data: "a=noop"}}},
		chat.Carousel{Cards: []chat.Card{
			{Title: "T1", Body: "B1", Buttons: []chat.Choice{{Label: "X", Data: "d1"}}},
			{Title: "T2", Body: "B2", Buttons: []chat.Choice{{Label: "Y", Data: "d2"}}},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}

	// Text + choices + one send per carousel card.
	if len(sess.sends) != 4 {
		t.Fatalf("sends = %d", len(sess.sends))
	}
	if sess.sends[0].Content != "hello" {
		t.Errorf("text send = %+v", sess.sends[0])
	}
	if len(sess.sends[1].Components) != 1 {
		t.Errorf("choices send components = %d", len(sess.sends[1].Components))
	}
	card := sess.sends[2]
	if len(card.Embeds) != 1 || card.Embeds[0].Title != "T1" {
		t.Errorf("card send = %+v", card)
	}
	row, ok := card.Components[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 1 {
		t.Fatalf("card components = %+v", card.Components)
	}
	btn := row.Components[0].(discordgo.Button)
	if btn.CustomID != "d1" || btn.Label != "X" {
		t.Errorf("button = %+v", btn)
	}
	for _, ch := range sess.channels {
		if ch != "C1" {
			t.Errorf("send channel = %q", ch)
		}
	}
}

func TestButtonRowsSplitAtFive(t *testing.T) {
	items := make([]chat.Choice, 7)
	for i := range items {
		items[i] = chat.Choice{Label: "L", Data: "d"}
	}
	rows := buttonRows(items)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	first := rows[0].(discordgo.ActionsRow)
	second := rows[1].(discordgo.ActionsRow)
	if len(first.Components) != 5 || len(second.Components) != 2 {
		t.Errorf("row sizes = %d/%d", len(first.Components), len(second.Components))
	}
}
