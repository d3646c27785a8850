package chat

import (
	"strings"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

// Stats aggregates a set of stored turns for the history page.
type Stats struct {
	TotalMessages       int
	TotalConversations  int
	AverageResponseTime float64
	ModelUsage          map[string]int
}

// ComputeStats counts msgs, their distinct conversations and per-model usage, and averages the
// processing time of assistant turns that have one.
func ComputeStats(msgs []models.Message) Stats {
	st := Stats{
		TotalMessages: len(msgs),
		ModelUsage:    make(map[string]int),
	}

	conversations := make(map[string]struct{})
	var timed int
	var total float64
	for _, msg := range msgs {
		conversations[msg.ConversationID] = struct{}{}
		if msg.ModelUsed != "" {
			st.ModelUsage[msg.ModelUsed]++
		}
		if msg.Role == models.RoleAssistant && msg.ProcessingTime != nil {
			timed++
			total += *msg.ProcessingTime
		}
	}
	st.TotalConversations = len(conversations)
	if timed > 0 {
		st.AverageResponseTime = total / float64(timed)
	}
	return st
}

// SearchOptions narrows the history view. Zero fields do not filter.
type SearchOptions struct {
	// Query matches message content, case-insensitively, as a substring.
	Query string
	// Day keeps messages created on the same calendar day, in Day's location.
	Day       time.Time
	Model     string
	InputType models.InputType
}

// Search returns the msgs matching every option set in opts, preserving their order.
func Search(msgs []models.Message, opts SearchOptions) []models.Message {
	query := strings.ToLower(opts.Query)
	var dayStart, dayEnd time.Time
	if !opts.Day.IsZero() {
		y, m, d := opts.Day.Date()
		dayStart = time.Date(y, m, d, 0, 0, 0, 0, opts.Day.Location())
		dayEnd = dayStart.AddDate(0, 0, 1)
	}

	var out []models.Message
	for _, msg := range msgs {
		if query != "" && !strings.Contains(strings.ToLower(msg.Content), query) {
			continue
		}
		if !dayStart.IsZero() && (msg.CreatedAt.Before(dayStart) || !msg.CreatedAt.Before(dayEnd)) {
			continue
		}
		if opts.Model != "" && msg.ModelUsed != opts.Model {
			continue
		}
		if opts.InputType != "" && msg.InputType != opts.InputType {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// UsedModels returns the distinct models that produced any of msgs, in first-seen order.
func UsedModels(msgs []models.Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, msg := range msgs {
		if msg.ModelUsed == "" {
			continue
		}
		if _, ok := seen[msg.ModelUsed]; ok {
			continue
		}
		seen[msg.ModelUsed] = struct{}{}
		out = append(out, msg.ModelUsed)
	}
	return out
}
