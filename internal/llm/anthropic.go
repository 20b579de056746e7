package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

// defaultAnthropicMaxTokens is used when the model config leaves MaxTokens
// unset; the Messages API requires it.
const defaultAnthropicMaxTokens = 1024

// AnthropicBackend streams replies from Anthropic's Messages API.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend creates an Anthropic backend.
func NewAnthropicBackend(opts ...option.RequestOption) *AnthropicBackend {
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

// Stream opens a streaming Messages request.
func (b *AnthropicBackend) Stream(ctx context.Context, request Request) (GenerationStream, error) {
	maxTokens := request.ModelConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.ModelConfig.Model),
		MaxTokens: int64(maxTokens),
		Messages:  buildAnthropicMessages(request.Messages),
	}
	if request.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.System}}
	}
	if t := request.ModelConfig.Temperature; t != nil {
		params.Temperature = anthropic.Float(*t)
	}

	stream := b.client.Messages.NewStreaming(ctx, params)
	return openStream[anthropic.MessageStreamEventUnion](
		stream,
		convertAnthropicEvent,
		func(err error) error { return classifyAnthropicError(models.ErrorKindStreamOpen, err) },
		func(err error) error { return classifyAnthropicError(models.ErrorKindStreamRead, err) },
	)
}

// buildAnthropicMessages converts turns to Messages API params. The API
// requires the conversation to open with a user message, so assistant turns
// left at the front by window trimming are dropped.
func buildAnthropicMessages(turns []models.ConversationTurn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case models.RoleAssistant:
			if len(messages) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	return messages
}

// convertAnthropicEvent yields text deltas and a final marker on
// message_stop. Everything else is skipped.
func convertAnthropicEvent(event anthropic.MessageStreamEventUnion) (Delta, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if text, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
			return Delta{Text: text.Text}, true
		}
	case anthropic.MessageStopEvent:
		return Delta{Final: true}, true
	}
	return Delta{}, false
}

func classifyAnthropicError(kind models.ErrorKind, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyByStatusCode(kind, apiErr.StatusCode, err)
	}
	return classifyTransportError(kind, "anthropic", err)
}
