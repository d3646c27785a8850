package models

import (
	"slices"
	"time"
)

// Message represents one conversation turn, either a user submission or an assistant reply. User turns
// always carry normalized text in Content, never the raw audio or image bytes they were derived from.
type Message struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	InputType      InputType `json:"input_type,omitempty"`
	ModelUsed      string    `json:"model_used,omitempty"`
	ConversationID string    `json:"conversation_id"`

	// ProcessingTime is the wall-clock latency, in seconds, of the backend call that produced an
	// assistant turn. It is nil for user turns and for assistant turns that carry an apology.
	ProcessingTime *float64 `json:"processing_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role represents the role of a message participant.
type Role string

// InputType represents the modality a user turn was captured in.
type InputType string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message.
	RoleAssistant Role = "assistant"

	// InputTypeText is typed text.
	InputTypeText InputType = "text"
	// InputTypeVoice is a recorded audio clip.
	InputTypeVoice InputType = "voice"
	// InputTypeImage is an uploaded image.
	InputTypeImage InputType = "image"
)

// Valid reports whether t is one of the known input types.
func (t InputType) Valid() bool {
	switch t {
	case InputTypeText, InputTypeVoice, InputTypeImage:
		return true
	}
	return false
}

// SortOrder selects the CreatedAt ordering of store results.
type SortOrder int

const (
	// SortDescending returns the newest message first. It is the zero value and therefore the default.
	SortDescending SortOrder = iota
	// SortAscending returns messages in chronological order.
	SortAscending
)

// MessageFilter is an exact-match conjunction: every non-empty field must equal the stored value.
type MessageFilter struct {
	ConversationID string
	Role           Role
	InputType      InputType
	ModelUsed      string
}

// Match reports whether msg satisfies every field set on f.
func (f MessageFilter) Match(msg Message) bool {
	if f.ConversationID != "" && msg.ConversationID != f.ConversationID {
		return false
	}
	if f.Role != "" && msg.Role != f.Role {
		return false
	}
	if f.InputType != "" && msg.InputType != f.InputType {
		return false
	}
	if f.ModelUsed != "" && msg.ModelUsed != f.ModelUsed {
		return false
	}
	return true
}

// SortMessages orders msgs by CreatedAt in place. The sort is stable, so messages sharing a timestamp
// keep the order they were appended in (reversed as a group for SortDescending).
func SortMessages(msgs []Message, order SortOrder) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if order == SortDescending {
		slices.Reverse(msgs)
	}
}

// HistoryEntry is the reduced {role, content} form of a turn embedded into prompts.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
