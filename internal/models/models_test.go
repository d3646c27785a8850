package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySize(t *testing.T) {
	tests := []struct {
		name          string
		model         string
		parameterSize string
		want          models.SizeClass
	}{
		{name: "tag 1.5b", model: "deepseek-r1:1.5b", want: models.SizeClass1_5B},
		{name: "tag 8b", model: "deepseek-r1:8b", want: models.SizeClass8B},
		{name: "tag 14b", model: "deepseek-r1:14b", want: models.SizeClass14B},
		{name: "tag 32b", model: "deepseek-r1:32b", want: models.SizeClass32B},
		{name: "tag with suffix", model: "qwen2.5-coder:7b-instruct", want: models.SizeClass8B},
		{name: "latest falls back to parameter size", model: "llama3.2:latest", parameterSize: "3.2B", want: models.SizeClass1_5B},
		{name: "70b is powerful", model: "llama3.3:70b", want: models.SizeClass32B},
		{name: "unknown defaults to 8b", model: "gpt-4o-mini", want: models.SizeClass8B},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.ClassifySize(tt.model, tt.parameterSize))
		})
	}
}

func TestSizeClassInfo(t *testing.T) {
	assert.Equal(t, "Smart", models.SizeClass14B.Info().Label)
	assert.Equal(t, "Balanced", models.SizeClass("3b").Info().Label)
}

func TestDefaultModels(t *testing.T) {
	defaults := models.DefaultModels()
	require.Len(t, defaults, 2)
	assert.Equal(t, "deepseek-r1:1.5b", defaults[0].Name)
	assert.Equal(t, "deepseek-r1:8b", defaults[1].Name)
}

func TestDecodeOutput(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind models.OutputKind
		wantText string
		wantOK   bool
		wantErr  bool
	}{
		{name: "scalar", raw: `"Hi there!"`, wantKind: models.OutputScalar, wantText: "Hi there!", wantOK: true},
		{name: "sequence of strings", raw: `["Hi there!", []]`, wantKind: models.OutputSequence, wantText: "Hi there!", wantOK: true},
		{name: "sequence starting with object", raw: `[{"a":1}]`, wantKind: models.OutputSequence},
		{name: "empty sequence", raw: `[]`, wantKind: models.OutputSequence},
		{name: "object", raw: `{"content":"x"}`, wantKind: models.OutputUnknown},
		{name: "number", raw: `42`, wantKind: models.OutputUnknown},
		{name: "null", raw: `null`, wantKind: models.OutputUnknown},
		{name: "invalid json", raw: `["oops`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := models.DecodeOutput(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, out.Kind)

			text, ok := out.Text()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestMessageFilterMatch(t *testing.T) {
	msg := models.Message{
		Role:           models.RoleUser,
		InputType:      models.InputTypeVoice,
		ConversationID: "conv_1",
	}

	assert.True(t, models.MessageFilter{}.Match(msg))
	assert.True(t, models.MessageFilter{ConversationID: "conv_1", Role: models.RoleUser}.Match(msg))
	assert.False(t, models.MessageFilter{ConversationID: "conv_1", Role: models.RoleAssistant}.Match(msg))
	assert.False(t, models.MessageFilter{InputType: models.InputTypeText}.Match(msg))
	assert.False(t, models.MessageFilter{ModelUsed: "deepseek-r1:8b"}.Match(msg))
}

func TestSortMessages(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "b", CreatedAt: base.Add(time.Second)},
		{ID: "a", CreatedAt: base},
		{ID: "c1", CreatedAt: base.Add(2 * time.Second)},
		{ID: "c2", CreatedAt: base.Add(2 * time.Second)},
	}

	models.SortMessages(msgs, models.SortAscending)
	assert.Equal(t, []string{"a", "b", "c1", "c2"}, ids(msgs))

	models.SortMessages(msgs, models.SortDescending)
	assert.Equal(t, []string{"c2", "c1", "b", "a"}, ids(msgs))
}

func TestExportRoundTrip(t *testing.T) {
	pt := 1.25
	created := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "Hello", InputType: models.InputTypeText, CreatedAt: created},
		{
			Role:           models.RoleAssistant,
			Content:        "Hi there!",
			ModelUsed:      "deepseek-r1:8b",
			ProcessingTime: &pt,
			CreatedAt:      created.Add(time.Second),
		},
	}

	data, err := models.ExportMessages(msgs)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processingTimeSeconds": 1.25`)
	assert.Contains(t, string(data), `"inputType": "text"`)

	records, err := models.ParseExport(data)
	require.NoError(t, err)
	require.Len(t, records, len(msgs))
	for i, rec := range records {
		assert.Equal(t, msgs[i].Role, rec.Role)
		assert.Equal(t, msgs[i].Content, rec.Content)
		assert.Equal(t, msgs[i].ModelUsed, rec.Model)
		assert.Equal(t, msgs[i].InputType, rec.InputType)
		assert.True(t, msgs[i].CreatedAt.Equal(rec.Timestamp))
	}
	assert.Nil(t, records[0].ProcessingTime)
	require.NotNil(t, records[1].ProcessingTime)
	assert.InDelta(t, pt, *records[1].ProcessingTime, 1e-9)
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2025, 7, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "chat_export_2025-07-09.json", models.ExportFileName("export", ts))
	assert.Equal(t, "chat_history_2025-07-09.json", models.ExportFileName("history", ts))
}

func TestConversations(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ConversationID: "conv_1", Role: models.RoleUser, Content: "first question", CreatedAt: base},
		{ConversationID: "conv_1", Role: models.RoleAssistant, Content: "answer", CreatedAt: base.Add(time.Second)},
		{ConversationID: "conv_2", Role: models.RoleUser, Content: "other", CreatedAt: base.Add(time.Minute)},
	}

	convs := models.Conversations(msgs)
	require.Len(t, convs, 2)
	assert.Equal(t, "conv_2", convs[0].ID)
	assert.Equal(t, "conv_1", convs[1].ID)
	assert.Equal(t, 2, convs[1].Turns)
	assert.Equal(t, "first question", convs[1].Preview)
	assert.True(t, convs[1].UpdatedAt.Equal(base.Add(time.Second)))
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
