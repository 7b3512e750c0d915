package push

import (
	"context"
	"sync"
)

// MockSender records notifications. Tokens listed in Stale fail with
// ErrStaleToken.
type MockSender struct {
	mu    sync.Mutex
	Sent  []Sent
	Stale map[string]bool

	SendEachFunc func(ctx context.Context, tokens []string, n Notification) ([]Result, error)
}

// Sent is one recorded batch
type Sent struct {
	Tokens       []string
	Notification Notification
}

func (m *MockSender) SendEach(ctx context.Context, tokens []string, n Notification) ([]Result, error) {
	if m.SendEachFunc != nil {
		return m.SendEachFunc(ctx, tokens, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Sent{Tokens: append([]string(nil), tokens...), Notification: n})
	out := make([]Result, len(tokens))
	for i, t := range tokens {
		out[i].Token = t
		if m.Stale[t] {
			out[i].Err = ErrStaleToken
		}
	}
	return out, nil
}

var _ Sender = (*MockSender)(nil)
