package chat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Session is the per-conversation context threaded through every orchestrator call. It owns the
// conversation id, the selected model, the clear horizon and the single in-flight turn guard.
type Session struct {
	ConversationID string

	mu        sync.Mutex
	model     string
	clearedAt time.Time

	inFlight *semaphore.Weighted
	busy     atomic.Bool
}

// NewSession creates a session for conversationID that sends turns to model.
func NewSession(conversationID, model string) *Session {
	return &Session{
		ConversationID: conversationID,
		model:          model,
		inFlight:       semaphore.NewWeighted(1),
	}
}

// NewConversationID returns a fresh conversation id derived from t.
func NewConversationID(t time.Time) string {
	return fmt.Sprintf("conv_%d", t.UnixMilli())
}

// Model returns the model selected for subsequent turns.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel selects the model for subsequent turns. Empty names are ignored.
func (s *Session) SetModel(model string) {
	if model == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Clear hides every turn created up to t from the session view and from prompt history. Stored turns
// are left untouched.
func (s *Session) Clear(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedAt = t
}

// ClearedAt returns the clear horizon, or the zero time if the session was never cleared.
func (s *Session) ClearedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearedAt
}

// Busy reports whether a turn is in flight. It never touches the guard, so the answer may be stale
// by the time the caller acts on it.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) tryBegin() bool {
	if !s.inFlight.TryAcquire(1) {
		return false
	}
	s.busy.Store(true)
	return true
}

func (s *Session) end() {
	s.busy.Store(false)
	s.inFlight.Release(1)
}
