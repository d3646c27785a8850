package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	wav := &models.Attachment{Name: "voice.wav", MIMEType: "audio/wav", Data: []byte("RIFF")}
	png := &models.Attachment{Name: "shot.png", MIMEType: "image/png", Data: []byte("PNG")}

	tests := []struct {
		name      string
		input     chat.Input
		generate  func(context.Context, models.GenerateRequest) (models.Output, error)
		want      string
		wantCalls int
		wantKind  models.AttachmentKind
	}{
		{
			name:  "text is trimmed without a backend call",
			input: chat.Input{Type: models.InputTypeText, Text: "  Hello \n"},
			want:  "Hello",
		},
		{
			name:      "voice transcription",
			input:     chat.Input{Type: models.InputTypeVoice, Attachment: wav},
			generate:  replyWith(" what time is it "),
			want:      "what time is it",
			wantCalls: 1,
			wantKind:  models.AttachmentAudio,
		},
		{
			name:      "voice empty transcription",
			input:     chat.Input{Type: models.InputTypeVoice, Attachment: wav},
			generate:  replyWith(""),
			want:      "Voice message processed",
			wantCalls: 1,
			wantKind:  models.AttachmentAudio,
		},
		{
			name:      "voice backend failure",
			input:     chat.Input{Type: models.InputTypeVoice, Attachment: wav},
			generate:  failWith(errBackendDown),
			want:      "Could not process voice input",
			wantCalls: 1,
			wantKind:  models.AttachmentAudio,
		},
		{
			name:  "voice without attachment",
			input: chat.Input{Type: models.InputTypeVoice},
			want:  "Could not process voice input",
		},
		{
			name:      "image without text is described",
			input:     chat.Input{Type: models.InputTypeImage, Attachment: png},
			generate:  replyWith("A cat sitting on a red sofa."),
			want:      "A cat sitting on a red sofa.",
			wantCalls: 1,
			wantKind:  models.AttachmentImage,
		},
		{
			name:      "image empty response",
			input:     chat.Input{Type: models.InputTypeImage, Attachment: png},
			generate:  replyWith("   "),
			want:      "Image processed",
			wantCalls: 1,
			wantKind:  models.AttachmentImage,
		},
		{
			name:      "image backend failure",
			input:     chat.Input{Type: models.InputTypeImage, Attachment: png},
			generate:  failWith(errBackendDown),
			want:      "Could not process image",
			wantCalls: 1,
			wantKind:  models.AttachmentImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{generate: tt.generate}
			n := chat.NewNormalizer(chat.NewGateway(backend, testLogger()), testLogger())

			got := n.Normalize(context.Background(), tt.input)
			assert.Equal(t, tt.want, got)

			reqs := backend.Requests()
			require.Len(t, reqs, tt.wantCalls)
			if tt.wantCalls == 0 {
				return
			}
			require.NotNil(t, reqs[0].Attachment)
			assert.Equal(t, tt.wantKind, reqs[0].Attachment.Kind)
			assert.Empty(t, reqs[0].Model)
		})
	}
}

func TestNormalizePromptsDoNotMisroute(t *testing.T) {
	backend := &mockBackend{generate: replyWith("ok")}
	n := chat.NewNormalizer(chat.NewGateway(backend, testLogger()), testLogger())

	n.Normalize(context.Background(), chat.Input{
		Type:       models.InputTypeImage,
		Attachment: &models.Attachment{Kind: models.AttachmentAudio, Data: []byte("PNG")},
	})

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.Contains(reqs[0].Prompt, "OCR"))
	assert.Equal(t, models.AttachmentImage, reqs[0].Attachment.Kind)
}
