package chat

import (
	"context"
	"fmt"
	"sync"
)

// MockReplier implements Replier for testing. It records every reply and
// can be told to fail, simulating a transport outage.
type MockReplier struct {
	mu      sync.Mutex
	replies []SentReply
	failErr error
}

// SentReply is one recorded Reply call.
type SentReply struct {
	ReplyToken string
	Messages   []Message
}

// NewMockReplier creates a MockReplier.
func NewMockReplier() *MockReplier {
	return &MockReplier{}
}

// Reply records the messages, or returns the configured failure.
func (m *MockReplier) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.replies = append(m.replies, SentReply{ReplyToken: replyToken, Messages: msgs})
	return nil
}

// FailWith makes subsequent Reply calls return err. Pass nil to recover.
func (m *MockReplier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Replies returns a copy of all recorded replies.
func (m *MockReplier) Replies() []SentReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentReply, len(m.replies))
	copy(out, m.replies)
	return out
}

// Last returns the most recent reply, or an error if none was sent.
func (m *MockReplier) Last() (SentReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return SentReply{}, fmt.Errorf("mock replier: no replies recorded")
	}
	return m.replies[len(m.replies)-1], nil
}

// Reset clears all recorded replies.
func (m *MockReplier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = nil
}
