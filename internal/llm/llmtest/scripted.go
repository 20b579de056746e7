// Package llmtest provides scripted backends for tests of code that consumes
// llm.GenerationStream.
package llmtest

import (
	"context"
	"io"
	"sync"

	"github.com/mfateev/llm-relay-bot/internal/llm"
)

// Step is one scripted stream event. A step with Err set terminates the
// stream with that error. A non-nil Gate blocks the step until it is closed or
// the caller's context is done.
type Step struct {
	Text  string
	Final bool
	Err   error
	Gate  <-chan struct{}
}

// Texts builds one step per fragment.
func Texts(fragments ...string) []Step {
	steps := make([]Step, len(fragments))
	for i, f := range fragments {
		steps[i] = Step{Text: f}
	}
	return steps
}

// Backend is an llm.Backend replaying scripts. Each Stream call consumes the
// next script; the last script is reused once the list is exhausted.
type Backend struct {
	// OpenErr, when set, is returned by every Stream call.
	OpenErr error

	mu       sync.Mutex
	scripts  [][]Step
	requests []llm.Request
	streams  []*Stream
}

var _ llm.Backend = (*Backend)(nil)

// NewBackend creates a backend that replays scripts in order.
func NewBackend(scripts ...[]Step) *Backend {
	return &Backend{scripts: scripts}
}

// Stream records the request and returns the next scripted stream.
func (b *Backend) Stream(ctx context.Context, request llm.Request) (llm.GenerationStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, request)
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	var steps []Step
	if n := len(b.requests); n <= len(b.scripts) {
		steps = b.scripts[n-1]
	} else if len(b.scripts) > 0 {
		steps = b.scripts[len(b.scripts)-1]
	}
	s := &Stream{steps: steps}
	b.streams = append(b.streams, s)
	return s, nil
}

// Requests returns the requests seen so far.
func (b *Backend) Requests() []llm.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]llm.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Streams returns the streams opened so far.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Stream, len(b.streams))
	copy(out, b.streams)
	return out
}

// Stream is a scripted llm.GenerationStream.
type Stream struct {
	mu     sync.Mutex
	steps  []Step
	pos    int
	closed bool
}

var _ llm.GenerationStream = (*Stream)(nil)

// NewStream creates a standalone scripted stream.
func NewStream(steps ...Step) *Stream {
	return &Stream{steps: steps}
}

// Recv returns the next scripted delta.
func (s *Stream) Recv(ctx context.Context) (llm.Delta, error) {
	s.mu.Lock()
	if s.pos >= len(s.steps) {
		s.mu.Unlock()
		return llm.Delta{}, io.EOF
	}
	step := s.steps[s.pos]
	s.pos++
	s.mu.Unlock()

	if step.Gate != nil {
		select {
		case <-step.Gate:
		case <-ctx.Done():
			return llm.Delta{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return llm.Delta{}, err
	}
	if step.Err != nil {
		return llm.Delta{}, step.Err
	}
	return llm.Delta{Text: step.Text, Final: step.Final}, nil
}

// Close marks the stream closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Consumed returns how many steps were read.
func (s *Stream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
