package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the chat Backend interface for OpenAI and any OpenAI-compatible
// endpoint (OpenRouter, LM Studio, vLLM) reachable through a custom base URL. Images are sent as
// image_url parts of the chat completion; audio is transcribed with Whisper.
type OpenAI struct {
	model              string
	transcriptionModel string
	systemPrompt       string

	params LLMParameters

	client *goopenai.Client

	logger *slog.Logger
}

// LLMParameters holds optional sampling parameters. Nil fields are left to the server default.
type LLMParameters struct {
	Temperature *float32 `yaml:"temperature"`
	TopP        *float32 `yaml:"topP"`
	MaxTokens   *int     `yaml:"maxTokens"`
	Seed        *int     `yaml:"seed"`
	Stop        []string `yaml:"stop"`
}

// OpenAIConfig configures an OpenAI backend. An empty BaseURL uses the OpenAI API, an empty
// TranscriptionModel uses whisper-1.
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	Model              string
	TranscriptionModel string
	SystemPrompt       string
	Params             LLMParameters
}

// NewOpenAI creates a new OpenAI instance from cfg.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) OpenAI {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	transcriptionModel := cfg.TranscriptionModel
	if transcriptionModel == "" {
		transcriptionModel = goopenai.Whisper1
	}

	return OpenAI{
		model:              cfg.Model,
		transcriptionModel: transcriptionModel,
		systemPrompt:       cfg.SystemPrompt,
		params:             cfg.Params,
		client:             goopenai.NewClientWithConfig(clientCfg),
		logger:             logger.With(slog.String("module", "openai")),
	}
}

// Name implements chat.Backend.
func (o OpenAI) Name() string {
	return "openai"
}

// Generate is a wrapper around the OpenAI chat completion API, or the transcription API for audio
// attachments.
func (o OpenAI) Generate(ctx context.Context, req models.GenerateRequest) (models.Output, error) {
	if att := req.Attachment; att != nil && att.Kind == models.AttachmentAudio {
		return o.transcribe(ctx, *att)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	userMsg := goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	}
	if att := req.Attachment; att != nil {
		if att.Kind != models.AttachmentImage {
			return models.Output{}, fmt.Errorf("openai %s input: %w", att.Kind, chat.ErrUnsupportedAttachment)
		}
		userMsg.Content = ""
		userMsg.MultiContent = []goopenai.ChatMessagePart{
			{
				Type: goopenai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    att.DataURL(),
					Detail: goopenai.ImageURLDetailAuto,
				},
			},
		}
	}

	msgs := []goopenai.ChatCompletionMessage{userMsg}
	if o.systemPrompt != "" {
		msgs = slices.Insert(msgs, 0, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		})
	}

	chatReq := o.chatRequest(model, msgs)

	if o.logger.Enabled(ctx, slog.LevelDebug) && req.Attachment == nil {
		reqJSON, err := json.Marshal(chatReq)
		if err == nil {
			o.logger.Debug("Request", slog.String("req", string(reqJSON)))
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.Output{}, fmt.Errorf("error sending request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.Output{}, errors.New("no choices found")
	}

	return models.ScalarOutput(resp.Choices[0].Message.Content), nil
}

func (o OpenAI) transcribe(ctx context.Context, att models.Attachment) (models.Output, error) {
	name := att.Name
	if name == "" {
		name = "voice.webm"
	}

	resp, err := o.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    o.transcriptionModel,
		FilePath: name,
		Reader:   bytes.NewReader(att.Data),
	})
	if err != nil {
		return models.Output{}, fmt.Errorf("error transcribing audio: %w", err)
	}

	return models.ScalarOutput(resp.Text), nil
}

// ListModels returns the models the endpoint advertises. OpenAI does not report parameter counts, so
// the size class comes from the model id alone.
func (o OpenAI) ListModels(ctx context.Context) ([]models.Model, error) {
	res, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	ms := make([]models.Model, 0, len(res.Models))
	for _, m := range res.Models {
		size := models.ClassifySize(m.ID, "")
		ms = append(ms, models.Model{
			Name:        m.ID,
			DisplayName: m.ID,
			SizeClass:   size,
			Description: size.Info().Description,
			IsActive:    true,
		})
	}
	return ms, nil
}

func (o OpenAI) chatRequest(model string, messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}
	if o.params.Seed != nil {
		req.Seed = o.params.Seed
	}
	if o.params.Stop != nil {
		req.Stop = o.params.Stop
	}

	return req
}
