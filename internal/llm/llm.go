package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingAPIKey is returned by a Factory when no key is configured for the
// requested provider.
var ErrMissingAPIKey = errors.New("llm: api key not configured")

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	maxTokens   int64
	temperature *float64
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens caps the completion length for providers that require one.
func WithMaxTokens(n int64) Option {
	return func(o *clientOptions) {
		o.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature. Providers use their own
// default when it is not set.
func WithTemperature(t float64) Option {
	return func(o *clientOptions) {
		o.temperature = &t
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: 8192}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

// Factory builds a client for a provider and model name.
type Factory func(provider, model string) (Client, error)

// NewFactory returns a Factory that looks up each provider's key with keys.
func NewFactory(keys func(provider string) string, opts ...Option) Factory {
	return func(provider, model string) (Client, error) {
		key := keys(provider)
		if key == "" {
			return nil, fmt.Errorf("%w for provider %q", ErrMissingAPIKey, provider)
		}
		return NewClient(provider, key, model, opts...)
	}
}
