package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

// OpenAIBackend streams chat completions from OpenAI or any
// OpenAI-compatible endpoint (DashScope, vLLM, Ollama, ...).
type OpenAIBackend struct {
	client openai.Client
}

// NewOpenAIBackend creates an OpenAI backend. Options are passed to the SDK
// client, e.g. option.WithAPIKey and option.WithBaseURL.
func NewOpenAIBackend(opts ...option.RequestOption) *OpenAIBackend {
	return &OpenAIBackend{client: openai.NewClient(opts...)}
}

// Stream opens a streaming chat completion.
func (b *OpenAIBackend) Stream(ctx context.Context, request Request) (GenerationStream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.ModelConfig.Model),
		Messages: buildOpenAIMessages(request),
	}
	if t := request.ModelConfig.Temperature; t != nil {
		params.Temperature = openai.Float(*t)
	}
	if request.ModelConfig.MaxTokens > 0 {
		// max_tokens rather than max_completion_tokens: compatible servers
		// commonly only understand the former.
		params.MaxTokens = openai.Int(int64(request.ModelConfig.MaxTokens))
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	return openStream[openai.ChatCompletionChunk](
		stream,
		convertOpenAIChunk,
		func(err error) error { return classifyOpenAIError(models.ErrorKindStreamOpen, err) },
		func(err error) error { return classifyOpenAIError(models.ErrorKindStreamRead, err) },
	)
}

// buildOpenAIMessages converts the request to chat messages: optional system
// prompt first, then the conversation in order.
func buildOpenAIMessages(request Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages)+1)
	if request.System != "" {
		messages = append(messages, openai.SystemMessage(request.System))
	}
	for _, turn := range request.Messages {
		switch turn.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	return messages
}

// convertOpenAIChunk yields one delta per chunk with choices, even when the
// chunk carries no text (role or finish chunks). Usage-only chunks are skipped.
func convertOpenAIChunk(chunk openai.ChatCompletionChunk) (Delta, bool) {
	if len(chunk.Choices) == 0 {
		return Delta{}, false
	}
	choice := chunk.Choices[0]
	return Delta{
		Text:  choice.Delta.Content,
		Final: choice.FinishReason != "",
	}, true
}

func classifyOpenAIError(kind models.ErrorKind, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyByStatusCode(kind, apiErr.StatusCode, err)
	}
	return classifyTransportError(kind, "openai", err)
}
