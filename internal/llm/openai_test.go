package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

// Helper: determine the role string from a message union by checking which variant is set.
// The SDK's constant types have zero-value strings, so we check variant pointers directly.
func msgRole(t *testing.T, msg openai.ChatCompletionMessageParamUnion) string {
	t.Helper()
	switch {
	case msg.OfSystem != nil:
		return "system"
	case msg.OfUser != nil:
		return "user"
	case msg.OfAssistant != nil:
		return "assistant"
	default:
		t.Fatal("message has no recognized variant set")
		return ""
	}
}

// Helper: extract the string content from a message union.
func msgContent(t *testing.T, msg openai.ChatCompletionMessageParamUnion) string {
	t.Helper()
	c := msg.GetContent().AsAny()
	require.NotNil(t, c, "content must not be nil")
	s, ok := c.(*string)
	require.True(t, ok, "content must be a *string, got %T", c)
	return *s
}

func chunkJSON(content, finish string) string {
	finishField := "null"
	if finish != "" {
		finishField = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"qwen-plus","choices":[{"index":0,"delta":{"content":%q},"finish_reason":%s}]}`,
		content, finishField)
}

// sseServer serves the given data payloads as one SSE response and records
// the decoded request body.
func sseServer(t *testing.T, path string, events []string, body *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		if body != nil {
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, body))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprint(w, ev)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAIBackend(url string) *OpenAIBackend {
	return NewOpenAIBackend(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(url+"/v1/"),
		option.WithMaxRetries(0),
	)
}

func TestBuildOpenAIMessages_SystemPromptFirst(t *testing.T) {
	messages := buildOpenAIMessages(Request{
		System: "be brief",
		Messages: []models.ConversationTurn{
			models.UserTurn("hi"),
			models.AssistantTurn("hello"),
			models.UserTurn("bye"),
		},
	})

	require.Len(t, messages, 4)
	assert.Equal(t, "system", msgRole(t, messages[0]))
	assert.Equal(t, "be brief", msgContent(t, messages[0]))
	assert.Equal(t, "user", msgRole(t, messages[1]))
	assert.Equal(t, "assistant", msgRole(t, messages[2]))
	assert.Equal(t, "hello", msgContent(t, messages[2]))
	assert.Equal(t, "user", msgRole(t, messages[3]))
	assert.Equal(t, "bye", msgContent(t, messages[3]))
}

func TestBuildOpenAIMessages_NoSystemPrompt(t *testing.T) {
	messages := buildOpenAIMessages(Request{Messages: []models.ConversationTurn{models.UserTurn("hi")}})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", msgRole(t, messages[0]))
}

func TestConvertOpenAIChunk(t *testing.T) {
	_, ok := convertOpenAIChunk(openai.ChatCompletionChunk{})
	assert.False(t, ok, "usage-only chunk carries no delta")

	d, ok := convertOpenAIChunk(openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{{Delta: openai.ChatCompletionChunkChoiceDelta{Content: "hey"}}},
	})
	assert.True(t, ok)
	assert.Equal(t, Delta{Text: "hey"}, d)

	d, ok = convertOpenAIChunk(openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{{FinishReason: "stop"}},
	})
	assert.True(t, ok)
	assert.Equal(t, Delta{Final: true}, d)
}

func TestOpenAIBackend_StreamsChunks(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, "/v1/chat/completions", []string{
		"data: " + chunkJSON("Good", "") + "\n\n",
		"data: " + chunkJSON("bye", "") + "\n\n",
		"data: " + chunkJSON("", "stop") + "\n\n",
		"data: [DONE]\n\n",
	}, &body)

	backend := newTestOpenAIBackend(srv.URL)
	stream, err := backend.Stream(context.Background(), Request{
		ModelConfig: models.ModelConfig{Model: "qwen-plus", MaxTokens: 256},
		Messages:    []models.ConversationTurn{models.UserTurn("bye")},
	})
	require.NoError(t, err)
	defer stream.Close()

	deltas, err := drain(t, stream)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []Delta{{Text: "Good"}, {Text: "bye"}, {Final: true}}, deltas)

	assert.Equal(t, "qwen-plus", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.NotContains(t, body, "temperature", "unset temperature leaves the server default")
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestOpenAIBackend_SendsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, "/v1/chat/completions", []string{
		"data: " + chunkJSON("ok", "stop") + "\n\n",
		"data: [DONE]\n\n",
	}, &body)

	zero := 0.0
	stream, err := newTestOpenAIBackend(srv.URL).Stream(context.Background(), Request{
		ModelConfig: models.ModelConfig{Model: "qwen-plus", Temperature: &zero},
		Messages:    []models.ConversationTurn{models.UserTurn("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()
	_, _ = drain(t, stream)

	require.Contains(t, body, "temperature")
	assert.EqualValues(t, 0, body["temperature"])
}

func TestOpenAIBackend_RateLimitIsRetryableOpenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	_, err := newTestOpenAIBackend(srv.URL).Stream(context.Background(), Request{
		ModelConfig: models.ModelConfig{Model: "gpt-4o-mini"},
		Messages:    []models.ConversationTurn{models.UserTurn("hi")},
	})
	require.Error(t, err)

	var te *models.TurnError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.ErrorKindStreamOpen, te.Kind)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.True(t, te.Retryable)
}

func TestOpenAIBackend_InBandErrorIsReadFailure(t *testing.T) {
	srv := sseServer(t, "/v1/chat/completions", []string{
		"data: " + chunkJSON("partial", "") + "\n\n",
		`data: {"error":{"message":"upstream overloaded"}}` + "\n\n",
	}, nil)

	stream, err := newTestOpenAIBackend(srv.URL).Stream(context.Background(), Request{
		ModelConfig: models.ModelConfig{Model: "gpt-4o-mini"},
		Messages:    []models.ConversationTurn{models.UserTurn("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	deltas, err := drain(t, stream)
	assert.Equal(t, []Delta{{Text: "partial"}}, deltas)
	assert.True(t, models.IsKind(err, models.ErrorKindStreamRead), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), "upstream overloaded"))
}
