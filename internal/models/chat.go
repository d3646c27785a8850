package models

import (
	"slices"
	"time"
)

// Conversation summarizes the turns sharing one conversation id. It is derived from stored messages
// and is never persisted on its own.
type Conversation struct {
	ID        string
	Preview   string
	Turns     int
	StartedAt time.Time
	UpdatedAt time.Time
}

const conversationPreviewLen = 60

// Conversations groups msgs by ConversationID and returns one summary per conversation, most recently
// updated first. The preview is the beginning of the earliest user turn.
func Conversations(msgs []Message) []Conversation {
	byID := make(map[string]*Conversation)
	var order []string
	for _, msg := range msgs {
		c, ok := byID[msg.ConversationID]
		if !ok {
			c = &Conversation{
				ID:        msg.ConversationID,
				StartedAt: msg.CreatedAt,
				UpdatedAt: msg.CreatedAt,
			}
			byID[msg.ConversationID] = c
			order = append(order, msg.ConversationID)
		}
		c.Turns++
		if msg.CreatedAt.Before(c.StartedAt) {
			c.StartedAt = msg.CreatedAt
		}
		if msg.CreatedAt.After(c.UpdatedAt) {
			c.UpdatedAt = msg.CreatedAt
		}
		if msg.Role == RoleUser && (c.Preview == "" || !msg.CreatedAt.After(c.StartedAt)) {
			c.Preview = truncate(msg.Content, conversationPreviewLen)
		}
	}

	convs := make([]Conversation, 0, len(order))
	for _, id := range order {
		convs = append(convs, *byID[id])
	}
	slices.SortStableFunc(convs, func(a, b Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return convs
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
