package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

// MemoryStore implements the chat Store in process memory. Its contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []models.Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores msg, assigning an id and timestamps when they are missing.
func (m *MemoryStore) Append(_ context.Context, msg models.Message) (models.Message, error) {
	if msg.ConversationID == "" {
		return models.Message{}, fmt.Errorf("message has no conversation id")
	}
	msg = stamp(msg)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return msg, nil
}

// List returns the messages matching filter, ordered by creation time.
func (m *MemoryStore) List(_ context.Context, filter models.MessageFilter, order models.SortOrder) ([]models.Message, error) {
	m.mu.RLock()
	var out []models.Message
	for _, msg := range m.messages {
		if filter.Match(msg) {
			out = append(out, msg)
		}
	}
	m.mu.RUnlock()

	models.SortMessages(out, order)
	return out, nil
}

// Query returns the messages of one conversation, ordered by creation time.
func (m *MemoryStore) Query(ctx context.Context, conversationID string, order models.SortOrder) ([]models.Message, error) {
	return m.List(ctx, models.MessageFilter{ConversationID: conversationID}, order)
}
