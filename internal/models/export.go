package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExportRecord is the downloadable form of one turn.
type ExportRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	InputType      InputType `json:"inputType,omitempty"`
	ProcessingTime *float64  `json:"processingTimeSeconds,omitempty"`
}

// ExportMessages serializes msgs, in the given order, into an indented JSON document.
func ExportMessages(msgs []Message) ([]byte, error) {
	records := make([]ExportRecord, len(msgs))
	for i, msg := range msgs {
		records[i] = ExportRecord{
			Timestamp:      msg.CreatedAt.UTC(),
			Role:           msg.Role,
			Content:        msg.Content,
			Model:          msg.ModelUsed,
			InputType:      msg.InputType,
			ProcessingTime: msg.ProcessingTime,
		}
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return b, nil
}

// ParseExport reads a document produced by ExportMessages.
func ParseExport(data []byte) ([]ExportRecord, error) {
	var records []ExportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export: %w", err)
	}
	return records, nil
}

// ExportFileName returns the download file name for an export of the given kind ("export" for a
// single conversation, "history" for the history page) made at t.
func ExportFileName(kind string, t time.Time) string {
	return fmt.Sprintf("chat_%s_%s.json", kind, t.UTC().Format(time.DateOnly))
}
