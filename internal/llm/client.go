// Package llm provides streaming language-model backends.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

// Request is one generation request: the conversation so far plus the new
// user turn as the last message.
type Request struct {
	ModelConfig models.ModelConfig        `json:"model_config"`
	System      string                    `json:"system,omitempty"`
	Messages    []models.ConversationTurn `json:"messages"`
}

// Delta is one incremental fragment of a streamed response.
// Final is set when the backend signals that generation is complete; the
// fragment may still carry text.
type Delta struct {
	Text  string
	Final bool
}

// GenerationStream is a finite, ordered, non-restartable sequence of deltas.
//
// Recv returns io.EOF after the last delta. Any other error terminates the
// stream. Close releases the underlying connection and is safe to call more
// than once.
type GenerationStream interface {
	Recv(ctx context.Context) (Delta, error)
	Close() error
}

// Backend opens generation streams. A failure to start generating is
// returned from Stream as a StreamOpenFailure.
type Backend interface {
	Stream(ctx context.Context, request Request) (GenerationStream, error)
}

// eventStream is the iterator shape shared by the SDKs' SSE streams.
type eventStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// sseStream adapts an SDK event stream to GenerationStream. Events that carry
// no delta (pings, block starts, usage) are skipped.
type sseStream[T any] struct {
	events   eventStream[T]
	convert  func(T) (Delta, bool)
	classify func(error) error

	pending *T
	done    bool
	closed  bool
}

// openStream pulls the first event so that connection and HTTP status errors
// surface from Backend.Stream rather than from the first Recv.
func openStream[T any](events eventStream[T], convert func(T) (Delta, bool), classifyOpen, classifyRead func(error) error) (GenerationStream, error) {
	s := &sseStream[T]{events: events, convert: convert, classify: classifyRead}
	if events.Next() {
		first := events.Current()
		s.pending = &first
		return s, nil
	}
	if err := events.Err(); err != nil {
		_ = events.Close()
		return nil, classifyOpen(err)
	}
	s.done = true
	return s, nil
}

func (s *sseStream[T]) Recv(ctx context.Context) (Delta, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Delta{}, err
		}
		if s.done {
			return Delta{}, io.EOF
		}

		var event T
		if s.pending != nil {
			event = *s.pending
			s.pending = nil
		} else if s.events.Next() {
			event = s.events.Current()
		} else {
			s.done = true
			if err := s.events.Err(); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Delta{}, ctxErr
				}
				return Delta{}, s.classify(err)
			}
			return Delta{}, io.EOF
		}

		if delta, ok := s.convert(event); ok {
			return delta, nil
		}
	}
}

func (s *sseStream[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.events.Close()
}

// classifyByStatusCode maps an HTTP status code to a TurnError of the given
// kind. Shared by all provider error classifiers.
//
// Classification:
//   - 429 (Too Many Requests): rate limit, retryable
//   - 408 (Request Timeout), 409 (Conflict): transient, retryable
//   - Other 4xx: request rejected, non-retryable (e.g., 400, 401, 403, 404)
//   - 5xx: transient server error, retryable
func classifyByStatusCode(kind models.ErrorKind, statusCode int, err error) *models.TurnError {
	var te *models.TurnError
	switch {
	case statusCode == http.StatusTooManyRequests:
		te = models.NewTurnError(kind, fmt.Sprintf("rate limit (%d)", statusCode), err)
		te.Retryable = true
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusConflict:
		te = models.NewTurnError(kind, fmt.Sprintf("retryable error (%d)", statusCode), err)
		te.Retryable = true
	case statusCode >= 400 && statusCode < 500:
		te = models.NewTurnError(kind, fmt.Sprintf("request rejected (%d)", statusCode), err)
	case statusCode >= 500:
		te = models.NewTurnError(kind, fmt.Sprintf("server error (%d)", statusCode), err)
		te.Retryable = true
	default:
		te = models.NewTurnError(kind, fmt.Sprintf("unexpected status (%d)", statusCode), err)
		te.Retryable = true
	}
	te.StatusCode = statusCode
	return te
}

// classifyTransportError handles errors that carry no HTTP status: network
// failures, malformed events, in-band stream errors. Context errors are
// classified like any other here; only the caller's own context decides
// cancellation, and a deadline hit inside the SDK or a proxy is a failure.
func classifyTransportError(kind models.ErrorKind, provider string, err error) *models.TurnError {
	te := models.NewTurnError(kind, provider+" stream error", err)
	te.Retryable = true
	return te
}
