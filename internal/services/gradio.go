package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/go-resty/resty/v2"
)

// Gradio implements the chat Backend interface for a Gradio app that exposes a prediction endpoint
// taking four positional inputs: text, audio file, image file and model name. The app answers with a
// "data" field that is either a string or a list whose first element is the text.
type Gradio struct {
	endpoint string
	model    string

	client *resty.Client

	logger *slog.Logger
}

type gradioRequest struct {
	Data []any `json:"data"`
}

type gradioFile struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type gradioResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

const defaultGradioEndpoint = "/api/predict"

// NewGradio creates a Gradio backend for the app served at baseURL. An empty endpoint uses
// /api/predict.
func NewGradio(baseURL, endpoint, model string, logger *slog.Logger) Gradio {
	if endpoint == "" {
		endpoint = defaultGradioEndpoint
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return Gradio{
		endpoint: endpoint,
		model:    model,
		client:   client,
		logger:   logger.With(slog.String("module", "gradio")),
	}
}

// Name implements chat.Backend.
func (g Gradio) Name() string {
	return "gradio"
}

// Generate posts the prompt, with the attachment in its audio or image slot, and decodes the response
// data.
func (g Gradio) Generate(ctx context.Context, req models.GenerateRequest) (models.Output, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	var audio, image any
	if att := req.Attachment; att != nil {
		f := gradioFile{Name: att.Name, Data: att.DataURL()}
		switch att.Kind {
		case models.AttachmentAudio:
			audio = f
		default:
			image = f
		}
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(gradioRequest{Data: []any{req.Prompt, audio, image, model}}).
		Post(g.endpoint)
	if err != nil {
		return models.Output{}, fmt.Errorf("error sending request: %w", err)
	}

	if resp.IsError() {
		return models.Output{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	var res gradioResponse
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return models.Output{}, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if res.Error != "" {
		return models.Output{}, fmt.Errorf("gradio error: %s", res.Error)
	}

	out, err := models.DecodeOutput(res.Data)
	if err != nil {
		return models.Output{}, fmt.Errorf("error decoding response data: %w", err)
	}

	g.logger.Debug("Generated",
		slog.String("model", model),
		slog.String("kind", string(out.Kind)),
		slog.Duration("elapsed", resp.Time()))

	return out, nil
}
