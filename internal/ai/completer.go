package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

// Supported providers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Default models per provider. MINUTES_MODEL overrides all of them.
const (
	ModelSonnet     = "claude-sonnet-4-5-20250929"
	ModelOpenAIMini = "gpt-4o-mini"
	ModelOllama     = "llama3.1"
)

// ErrNoAPIKey is returned when a hosted provider is selected without credentials
var ErrNoAPIKey = errors.New("no API key configured")

// CompletionRequest is a single-turn prompt sent to a language model
type CompletionRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
	Operation string // label for logs, e.g. "duplicate_confirmation"
}

// Completion is the text a model returned plus token accounting
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer sends one prompt to a language model and returns its text.
// Implementations must be safe for concurrent use and must not retry.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ClientConfig selects and authenticates a provider
type ClientConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // anthropic (default), openai, ollama
	APIKey   string `yaml:"api_key" toml:"api_key"`   // falls back to ANTHROPIC_API_KEY / OPENAI_API_KEY
	BaseURL  string `yaml:"base_url" toml:"base_url"` // optional endpoint override
	Model    string `yaml:"model" toml:"model"`       // falls back to DefaultModel(provider)
}

// DefaultModel returns the model for a provider, checking MINUTES_MODEL first
func DefaultModel(provider string) string {
	if model := os.Getenv("MINUTES_MODEL"); model != "" {
		return model
	}
	switch normalizeProvider(provider) {
	case ProviderOpenAI:
		return ModelOpenAIMini
	case ProviderOllama:
		return ModelOllama
	default:
		return ModelSonnet
	}
}

func normalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" || p == "claude" {
		return ProviderAnthropic
	}
	return p
}

// NewCompleter builds the completer for cfg.Provider
func NewCompleter(cfg ClientConfig) (Completer, error) {
	switch normalizeProvider(cfg.Provider) {
	case ProviderAnthropic:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic: %w (set ANTHROPIC_API_KEY)", ErrNoAPIKey)
		}
		return NewAnthropicCompleter(apiKey, cfg.BaseURL), nil

	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai: %w (set OPENAI_API_KEY)", ErrNoAPIKey)
		}
		return NewOpenAICompleter(apiKey, cfg.BaseURL), nil

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = strings.TrimRight(baseURL, "/") + "/v1"
		}
		// Ollama ignores the key but the client requires one
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAICompleter(apiKey, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// AnthropicCompleter calls the Anthropic Messages API
type AnthropicCompleter struct {
	client anthropic.Client
}

// NewAnthropicCompleter creates a completer for the Anthropic API
func NewAnthropicCompleter(apiKey, baseURL string) *AnthropicCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // failed oracle calls fail open instead
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicCompleter{client: anthropic.NewClient(opts...)}
}

// Complete implements Completer
func (c *AnthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:         text.String(),
		Model:        string(resp.Model),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint
type OpenAICompleter struct {
	client *openai.Client
}

// NewOpenAICompleter creates a completer for OpenAI or any compatible endpoint
func NewOpenAICompleter(apiKey, baseURL string) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(config)}
}

// Complete implements Completer
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai API returned no choices")
	}

	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}
