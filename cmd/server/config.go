package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/MegaGrindStone/chat-ui/internal/services"
	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	backend(systemPrompt string, logger *slog.Logger) (chat.Backend, error)
	defaultModel() string
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

func (b BaseLLMConfig) defaultModel() string {
	return b.Model
}

type config struct {
	Port         string         `yaml:"port"`
	LogLevel     string         `yaml:"logLevel"`
	SystemPrompt string         `yaml:"systemPrompt"`
	LLM          llmConfig      `yaml:"llm"`
	Store        storeConfig    `yaml:"store"`
	Models       []models.Model `yaml:"models"`
}

type storeConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// envConfig holds the environment overrides applied on top of the config file.
type envConfig struct {
	ConfigPath string `env:"CHATUI_CONFIG"`
	Port       string `env:"CHATUI_PORT"`
	LogLevel   string `env:"CHATUI_LOG_LEVEL"`
	StoreType  string `env:"CHATUI_STORE_TYPE"`
	StorePath  string `env:"CHATUI_STORE_PATH"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig      `yaml:",inline"`
	APIKey             string                 `yaml:"apiKey"`
	BaseURL            string                 `yaml:"baseURL"`
	TranscriptionModel string                 `yaml:"transcriptionModel"`
	Parameters         services.LLMParameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type gradioConfig struct {
	BaseLLMConfig `yaml:",inline"`
	URL           string `yaml:"url"`
	Endpoint      string `yaml:"endpoint"`
}

const (
	storeTypeBolt   = "bolt"
	storeTypeMemory = "memory"

	defaultPort = "8080"
)

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string         `yaml:"port"`
		LogLevel     string         `yaml:"logLevel"`
		SystemPrompt string         `yaml:"systemPrompt"`
		LLM          map[string]any `yaml:"llm"`
		Store        storeConfig    `yaml:"store"`
		Models       []models.Model `yaml:"models"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.SystemPrompt = rawConfig.SystemPrompt
	c.Store = rawConfig.Store
	c.Models = rawConfig.Models

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "gradio":
		llm = &gradioConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

// loadConfig decodes the config file from r and applies defaults and environment overrides. dataDir
// is where the default store file lives.
func loadConfig(r io.Reader, overrides envConfig, dataDir string) (config, error) {
	cfg := config{}
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	if overrides.Port != "" {
		cfg.Port = overrides.Port
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.StoreType != "" {
		cfg.Store.Type = overrides.StoreType
	}
	if overrides.StorePath != "" {
		cfg.Store.Path = overrides.StorePath
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = storeTypeBolt
	}
	if cfg.Store.Type == storeTypeBolt && cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(dataDir, "store.db")
	}

	switch cfg.Store.Type {
	case storeTypeBolt, storeTypeMemory:
	default:
		return config{}, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}

	for i, m := range cfg.Models {
		if m.Name == "" {
			return config{}, fmt.Errorf("model %d has no name", i)
		}
		if m.DisplayName == "" {
			cfg.Models[i].DisplayName = m.Name
		}
		if m.SizeClass == "" {
			cfg.Models[i].SizeClass = models.ClassifySize(m.Name, "")
		}
	}

	return cfg, nil
}

func parseEnv(environ map[string]string) (envConfig, error) {
	var e envConfig
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return envConfig{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c config) store() (chat.Store, func() error, error) {
	if c.Store.Type == storeTypeMemory {
		return services.NewMemoryStore(), func() error { return nil }, nil
	}

	db, err := services.NewBoltDB(c.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

func (o ollamaConfig) backend(systemPrompt string, logger *slog.Logger) (chat.Backend, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return services.NewOllama(host, o.Model, systemPrompt, logger), nil
}

func (o openAIConfig) backend(systemPrompt string, logger *slog.Logger) (chat.Backend, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(services.OpenAIConfig{
		APIKey:             apiKey,
		BaseURL:            o.BaseURL,
		Model:              o.Model,
		TranscriptionModel: o.TranscriptionModel,
		SystemPrompt:       systemPrompt,
		Params:             o.Parameters,
	}, logger), nil
}

func (a anthropicConfig) backend(systemPrompt string, logger *slog.Logger) (chat.Backend, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Endpoint, a.Model, systemPrompt, a.MaxTokens, logger), nil
}

func (g gradioConfig) backend(_ string, logger *slog.Logger) (chat.Backend, error) {
	if g.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return services.NewGradio(g.URL, g.Endpoint, g.Model, logger), nil
}
