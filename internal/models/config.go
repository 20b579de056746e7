package models

// ModelConfig configures the LLM model parameters sent with every request.
// Zero values are filled from the profile registry.
type ModelConfig struct {
	Provider    string   `json:"provider"`              // "openai" or "anthropic"
	Model       string   `json:"model"`                 // e.g. "gpt-4o-mini", "qwen-plus"
	Temperature *float64 `json:"temperature,omitempty"` // nil leaves the provider default
	MaxTokens   int      `json:"max_tokens"`            // Max tokens to generate
}
