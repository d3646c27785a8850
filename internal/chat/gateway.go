// Package chat implements the multi-modal turn pipeline: input normalization, the inference gateway in
// front of a pluggable backend, and the orchestrator that persists user and assistant turns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

// Backend is a remote text-generation capability. Implementations decode the backend's response into
// a models.Output exactly once; the gateway never inspects raw payloads.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req models.GenerateRequest) (models.Output, error)
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.Model, error)
}

// InferenceError is returned by the gateway for every failed generation: transport failures, non-2xx
// statuses, malformed bodies and requests the backend cannot serve.
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on %s failed: %v", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedAttachment is wrapped by backends that have no input slot for an attachment kind.
var ErrUnsupportedAttachment = errors.New("attachment kind is not supported by backend")

// Gateway wraps a single Backend. It resolves the attachment slot, unwraps the response shape and
// translates failures into *InferenceError. It performs no retries and sets no timeout of its own.
type Gateway struct {
	backend Backend
	logger  *slog.Logger
}

// NewGateway creates a Gateway in front of backend.
func NewGateway(backend Backend, logger *slog.Logger) Gateway {
	return Gateway{
		backend: backend,
		logger:  logger.With(slog.String("module", "gateway")),
	}
}

// Backend returns the wrapped backend.
func (g Gateway) Backend() Backend {
	return g.backend
}

var audioPromptPattern = regexp.MustCompile(`(?i)audio|voice|speech`)

// KindFromPrompt guesses the attachment kind from the prompt wording: audio when the prompt mentions
// audio, voice or speech, image otherwise. Callers should set Attachment.Kind explicitly; this is only
// consulted for attachments without a kind, and misroutes e.g. an image prompt that says "audio".
func KindFromPrompt(prompt string) models.AttachmentKind {
	if audioPromptPattern.MatchString(prompt) {
		return models.AttachmentAudio
	}
	return models.AttachmentImage
}

// Generate sends prompt, and at most one attachment, to the backend and returns the response text.
// Extra attachments are dropped. An empty model uses the backend's configured default. Response shapes
// other than a string or a list starting with a string yield an empty string, not an error.
func (g Gateway) Generate(ctx context.Context, prompt, model string, attachments ...models.Attachment) (string, error) {
	req := models.GenerateRequest{
		Prompt: prompt,
		Model:  model,
	}

	if len(attachments) > 0 {
		if len(attachments) > 1 {
			g.logger.Warn("Received multiple attachments, but only the first one is supported",
				slog.Int("count", len(attachments)))
		}
		att := attachments[0]
		if att.Kind == "" {
			att.Kind = KindFromPrompt(prompt)
			g.logger.Debug("Attachment kind inferred from prompt", slog.String("kind", string(att.Kind)))
		}
		req.Attachment = &att
	}

	out, err := g.backend.Generate(ctx, req)
	if err != nil {
		return "", &InferenceError{Backend: g.backend.Name(), Err: err}
	}

	text, ok := out.Text()
	if !ok {
		g.logger.Warn("Unexpected response shape",
			slog.String("backend", g.backend.Name()),
			slog.String("kind", string(out.Kind)))
		return "", nil
	}
	return text, nil
}
