package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the chat Backend interface for a local Ollama server. Images are
// sent through the generate endpoint's image slot; Ollama has no audio input.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and default model name. The host
// parameter should be a valid URL pointing to an Ollama server. If the provided host URL is invalid,
// the function will panic.
func NewOllama(host, model, systemPrompt string, logger *slog.Logger) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
		logger:       logger.With(slog.String("module", "ollama")),
	}
}

// Name implements chat.Backend.
func (o Ollama) Name() string {
	return "ollama"
}

// Generate sends a single non-streaming generate request and returns the full response text.
func (o Ollama) Generate(ctx context.Context, req models.GenerateRequest) (models.Output, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	f := false
	genReq := api.GenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: o.systemPrompt,
		Stream: &f,
	}

	if att := req.Attachment; att != nil {
		if att.Kind != models.AttachmentImage {
			return models.Output{}, fmt.Errorf("ollama %s input: %w", att.Kind, chat.ErrUnsupportedAttachment)
		}
		genReq.Images = []api.ImageData{att.Data}
	}

	var response string
	if err := o.client.Generate(ctx, &genReq, func(res api.GenerateResponse) error {
		response += res.Response
		return nil
	}); err != nil {
		return models.Output{}, fmt.Errorf("error sending request: %w", err)
	}

	o.logger.Debug("Generated", slog.String("model", model), slog.Int("length", len(response)))

	return models.ScalarOutput(response), nil
}

// ListModels returns the models pulled on the Ollama server, classified by size.
func (o Ollama) ListModels(ctx context.Context) ([]models.Model, error) {
	res, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	ms := make([]models.Model, 0, len(res.Models))
	for _, m := range res.Models {
		size := models.ClassifySize(m.Name, m.Details.ParameterSize)
		ms = append(ms, models.Model{
			Name:        m.Name,
			DisplayName: m.Name,
			SizeClass:   size,
			Description: size.Info().Description,
			IsActive:    true,
		})
	}
	return ms, nil
}
