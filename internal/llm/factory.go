package llm

import (
	"fmt"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/v3/option"
)

// BackendConfig selects and configures the single backend used by the
// process.
type BackendConfig struct {
	Provider string // "openai" (default) or "anthropic"
	APIKey   string
	BaseURL  string // optional; OpenAI-compatible servers set this
	// MaxRetries overrides the SDK retry count when positive.
	MaxRetries int
}

// NewBackend creates the backend named by cfg.Provider.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Provider {
	case "openai", "":
		opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, openaiopt.WithMaxRetries(cfg.MaxRetries))
		}
		return NewOpenAIBackend(opts...), nil
	case "anthropic":
		opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, anthropicopt.WithMaxRetries(cfg.MaxRetries))
		}
		return NewAnthropicBackend(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic)", cfg.Provider)
	}
}
