package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

// Input is one raw user submission. Text is used for InputTypeText; Attachment carries the recorded
// audio or uploaded image for the other types.
type Input struct {
	Type       models.InputType
	Text       string
	Attachment *models.Attachment
}

const (
	voicePrompt = `Convert this audio file to text. If you cannot process audio, respond with: ` +
		`"Voice input received - please implement speech-to-text integration"`
	imagePrompt = `Please analyze this image and extract any text content using OCR. ` +
		`If there is no text, describe what you see in the image. Provide a clear, detailed response.`

	voiceEmptyFallback  = "Voice message processed"
	voiceFailedFallback = "Could not process voice input"
	imageEmptyFallback  = "Image processed"
	imageFailedFallback = "Could not process image"
)

var errMissingAttachment = errors.New("input has no attachment")

// Normalizer turns any Input into plain text. Voice and image inputs cost one gateway call each.
type Normalizer struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewNormalizer creates a Normalizer that transcribes and describes attachments through gateway.
func NewNormalizer(gateway Gateway, logger *slog.Logger) Normalizer {
	return Normalizer{
		gateway: gateway,
		logger:  logger.With(slog.String("module", "normalizer")),
	}
}

// Normalize returns the text form of in. It never fails: when an attachment cannot be turned into text
// the cause is logged and a fixed fallback string is returned instead. Text input is only trimmed;
// rejecting empty text is the caller's job.
func (n Normalizer) Normalize(ctx context.Context, in Input) string {
	switch in.Type {
	case models.InputTypeVoice:
		return n.viaGateway(ctx, in, models.AttachmentAudio, voicePrompt, voiceEmptyFallback, voiceFailedFallback)
	case models.InputTypeImage:
		return n.viaGateway(ctx, in, models.AttachmentImage, imagePrompt, imageEmptyFallback, imageFailedFallback)
	default:
		return strings.TrimSpace(in.Text)
	}
}

func (n Normalizer) viaGateway(
	ctx context.Context,
	in Input,
	kind models.AttachmentKind,
	prompt, emptyFallback, failedFallback string,
) string {
	if in.Attachment == nil {
		n.logger.Error("Normalization failed",
			slog.String("inputType", string(in.Type)),
			slog.String(errLoggerKey, errMissingAttachment.Error()))
		return failedFallback
	}

	att := *in.Attachment
	att.Kind = kind

	text, err := n.gateway.Generate(ctx, prompt, "", att)
	if err != nil {
		n.logger.Error("Normalization failed",
			slog.String("inputType", string(in.Type)),
			slog.String(errLoggerKey, err.Error()))
		return failedFallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return emptyFallback
	}
	return text
}
