package chamaWeb

import (
	"context"
	"sync"
)

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	// NoticeInfo marks progress messages such as "check your phone".
	NoticeInfo NoticeLevel = "info"
	// NoticeSuccess marks completed actions.
	NoticeSuccess NoticeLevel = "success"
	// NoticeError marks terminal failures.
	NoticeError NoticeLevel = "error"
)

// Notice is one message for the person in front of the screen.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Notifier receives user-facing notices. Implementations must not block for
// long: notices are delivered on the handshake's timer goroutine.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(Notice) {}

// NoticeLog records every notice it receives. It is safe for concurrent use.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify appends n.
func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

// All returns a copy of the recorded notices in arrival order.
func (l *NoticeLog) All() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notice, len(l.notices))
	copy(out, l.notices)
	return out
}

// Last returns the most recent notice, if any.
func (l *NoticeLog) Last() (Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notices) == 0 {
		return Notice{}, false
	}
	return l.notices[len(l.notices)-1], true
}

// Count returns how many notices of level were recorded.
func (l *NoticeLog) Count(level NoticeLevel) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, notice := range l.notices {
		if notice.Level == level {
			n++
		}
	}
	return n
}

// TokenStore holds the persisted access token between page loads or CLI runs.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// MemoryTokenStore is an in-process [TokenStore].
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns a store pre-loaded with token ("" for empty).
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

// Token returns the stored token or "".
func (s *MemoryTokenStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// SetToken replaces the stored token.
func (s *MemoryTokenStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// ClearToken removes the stored token.
func (s *MemoryTokenStore) ClearToken(context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
