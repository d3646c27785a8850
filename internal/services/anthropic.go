package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an interface to the Anthropic Messages API. It implements the chat Backend
// interface by streaming the completion and accumulating the text deltas. Images are sent as base64
// image blocks; audio is not supported.
type Anthropic struct {
	apiKey       string
	endpoint     string
	model        string
	systemPrompt string
	maxTokens    int

	client *http.Client

	logger *slog.Logger
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
)

// NewAnthropic creates a new Anthropic instance with the specified API key, default model name, and
// maximum token limit. An empty endpoint uses the public API.
func NewAnthropic(apiKey, endpoint, model, systemPrompt string, maxTokens int, logger *slog.Logger) Anthropic {
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	return Anthropic{
		apiKey:       apiKey,
		endpoint:     strings.TrimSuffix(endpoint, "/"),
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       &http.Client{},
		logger:       logger.With(slog.String("module", "anthropic")),
	}
}

// Name implements chat.Backend.
func (a Anthropic) Name() string {
	return "anthropic"
}

// Generate streams a completion for the prompt and returns the concatenated text. The context can be
// used to cancel the request mid-stream.
func (a Anthropic) Generate(ctx context.Context, req models.GenerateRequest) (models.Output, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var contents []anthropicContent
	if att := req.Attachment; att != nil {
		if att.Kind != models.AttachmentImage {
			return models.Output{}, fmt.Errorf("anthropic %s input: %w", att.Kind, chat.ErrUnsupportedAttachment)
		}
		contents = append(contents, anthropicContent{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: att.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	contents = append(contents, anthropicContent{Type: "text", Text: req.Prompt})

	reqBody := anthropicChatRequest{
		Model:     model,
		Messages:  []anthropicMessage{{Role: string(models.RoleUser), Content: contents}},
		System:    a.systemPrompt,
		MaxTokens: a.maxTokens,
		Stream:    true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return models.Output{}, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return models.Output{}, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return models.Output{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var e anthropicError
		if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
			return models.Output{}, fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message)
		}
		return models.Output{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var text strings.Builder
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			return models.Output{}, fmt.Errorf("error reading response: %w", err)
		}
		switch ev.Type {
		case "error":
			var e anthropicError
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
				return models.Output{}, fmt.Errorf("error unmarshaling error: %w", err)
			}
			return models.Output{}, fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message)
		case "message_stop":
			return models.ScalarOutput(text.String()), nil
		case "content_block_delta":
			var res anthropicStreamResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				return models.Output{}, fmt.Errorf("error unmarshaling response: %w", err)
			}
			text.WriteString(res.Delta.Text)
		default:
			continue
		}
	}

	a.logger.Warn("Stream ended without message_stop", slog.String("model", model))
	return models.ScalarOutput(text.String()), nil
}
