// Package ai wraps the chat model behind a small provider so callers never
// touch the OpenAI client directly.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/smartsched/server/internal/retry"
)

// Config holds the AI provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	MaxRetries int
	Timeout    time.Duration
	// RequestsPerSecond throttles outgoing completions. Zero means no limit.
	RequestsPerSecond float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		APIKey:     "",
		ChatModel:  "gpt-4o-mini",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// Provider provides chat completions with retry, throttling and timeouts.
type Provider struct {
	client  *openai.Client
	config  *Config
	limiter *rate.Limiter
}

// NewProvider creates a new AI provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Apply defaults for unset values
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: limiter,
	}, nil
}

// Message represents a chat message.
type Message struct {
	Role    string
	Content string
}

// Chat performs a chat completion.
func (p *Provider) Chat(ctx context.Context, messages []Message) (string, error) {
	return p.chat(ctx, messages, nil)
}

// ChatJSON performs a chat completion that must return a JSON object. The
// system and user prompts are passed through unchanged.
func (p *Provider) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return p.chat(ctx,
		[]Message{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		&openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	)
}

func (p *Provider) chat(ctx context.Context, messages []Message, format *openai.ChatCompletionResponseFormat) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	var result string
	err := retry.Do(ctx, retry.Config{MaxAttempts: p.config.MaxRetries}, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		req := openai.ChatCompletionRequest{
			Model:          p.config.ChatModel,
			Messages:       llmMessages,
			ResponseFormat: format,
		}

		resp, err := p.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}
	return result, nil
}

// Validate checks that the provider is usable.
func (p *Provider) Validate(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("API key is required, set SMARTSCHED_AI_API_KEY environment variable")
	}

	if _, err := p.Chat(ctx, []Message{{Role: openai.ChatMessageRoleUser, Content: "ping"}}); err != nil {
		return fmt.Errorf("chat validation failed: %w", err)
	}

	slog.Info("AI provider validated successfully", "chat_model", p.config.ChatModel)
	return nil
}

// NewProviderFromEnv creates a provider from environment variables.
func NewProviderFromEnv() (*Provider, error) {
	return NewProvider(&Config{
		BaseURL:    getEnv("SMARTSCHED_AI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:     getEnv("SMARTSCHED_AI_API_KEY", ""),
		ChatModel:  getEnv("SMARTSCHED_AI_CHAT_MODEL", "gpt-4o-mini"),
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	})
}

// getEnv gets an environment variable with a fallback.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
