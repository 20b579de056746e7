package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(BackendConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIBackend{}, b)

	b, err = NewBackend(BackendConfig{Provider: "openai", APIKey: "k", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIBackend{}, b)

	b, err = NewBackend(BackendConfig{Provider: "anthropic", APIKey: "k", MaxRetries: 1})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicBackend{}, b)

	_, err = NewBackend(BackendConfig{Provider: "google"})
	assert.ErrorContains(t, err, "unsupported LLM provider: google")
}
