package handlers

import (
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
)

// sessionRegistry keeps one chat.Session per conversation that has been written to (a turn or a
// clear). The session carries the selected model, the clear horizon and the in-flight guard, so every
// request for the same conversation must share it. Read-only requests use view instead, which never
// registers anything.
type sessionRegistry struct {
	mu           sync.Mutex
	sessions     map[string]*chat.Session
	defaultModel string
	lastID       int64
}

func newSessionRegistry(defaultModel string) *sessionRegistry {
	return &sessionRegistry{
		sessions:     make(map[string]*chat.Session),
		defaultModel: defaultModel,
	}
}

// session returns the session of conversationID, creating it with the default model on first use.
func (r *sessionRegistry) session(conversationID string) *chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[conversationID]
	if !ok {
		sess = chat.NewSession(conversationID, r.defaultModel)
		r.sessions[conversationID] = sess
	}
	return sess
}

// view returns the registered session of conversationID, or an unregistered one with the default
// model and no clear horizon.
func (r *sessionRegistry) view(conversationID string) *chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[conversationID]; ok {
		return sess
	}
	return chat.NewSession(conversationID, r.defaultModel)
}

// newConversationID returns an id no earlier call has returned. Ids are millisecond timestamps, bumped
// past the last issued one and past any registered conversation.
func (r *sessionRegistry) newConversationID(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := now.UnixMilli()
	if ms <= r.lastID {
		ms = r.lastID + 1
	}
	id := chat.NewConversationID(time.UnixMilli(ms))
	for {
		if _, ok := r.sessions[id]; !ok {
			break
		}
		ms++
		id = chat.NewConversationID(time.UnixMilli(ms))
	}
	r.lastID = ms
	return id
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
