package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

// fakeEvents is an in-memory eventStream.
type fakeEvents struct {
	events []string
	err    error
	pos    int
	cur    string
	closed int
}

func (f *fakeEvents) Next() bool {
	if f.pos >= len(f.events) {
		return false
	}
	f.cur = f.events[f.pos]
	f.pos++
	return true
}

func (f *fakeEvents) Current() string { return f.cur }
func (f *fakeEvents) Err() error {
	if f.pos >= len(f.events) {
		return f.err
	}
	return nil
}
func (f *fakeEvents) Close() error { f.closed++; return nil }

// convertFake skips "ping" events and treats "!" as the final marker.
func convertFake(ev string) (Delta, bool) {
	switch ev {
	case "ping":
		return Delta{}, false
	case "!":
		return Delta{Final: true}, true
	}
	return Delta{Text: ev}, true
}

func openFake(t *testing.T, f *fakeEvents) (GenerationStream, error) {
	t.Helper()
	return openStream[string](f, convertFake,
		func(err error) error { return models.NewStreamOpenError("open", err) },
		func(err error) error { return models.NewStreamReadError("read", err) },
	)
}

func drain(t *testing.T, s GenerationStream) ([]Delta, error) {
	t.Helper()
	var out []Delta
	for {
		d, err := s.Recv(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
}

func TestOpenStream_SkipsNonDeltaEvents(t *testing.T) {
	f := &fakeEvents{events: []string{"ping", "Hel", "ping", "lo", "!"}}
	s, err := openFake(t, f)
	require.NoError(t, err)

	deltas, err := drain(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []Delta{{Text: "Hel"}, {Text: "lo"}, {Final: true}}, deltas)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, f.closed)
}

func TestOpenStream_ErrorBeforeFirstEventIsOpenFailure(t *testing.T) {
	f := &fakeEvents{err: errors.New("connection refused")}
	s, err := openFake(t, f)
	assert.Nil(t, s)
	assert.True(t, models.IsKind(err, models.ErrorKindStreamOpen))
	assert.Equal(t, 1, f.closed)
}

func TestOpenStream_EmptyStream(t *testing.T) {
	s, err := openFake(t, &fakeEvents{})
	require.NoError(t, err)
	deltas, err := drain(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, deltas)
}

func TestOpenStream_MidStreamErrorIsReadFailure(t *testing.T) {
	f := &fakeEvents{events: []string{"a", "b"}, err: errors.New("reset by peer")}
	s, err := openFake(t, f)
	require.NoError(t, err)

	deltas, err := drain(t, s)
	assert.Len(t, deltas, 2)
	assert.True(t, models.IsKind(err, models.ErrorKindStreamRead))

	// The stream stays terminated.
	_, err = s.Recv(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEStream_RecvHonoursCancellation(t *testing.T) {
	s, err := openFake(t, &fakeEvents{events: []string{"a", "b"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyByStatusCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{408, true},
		{409, true},
		{400, false},
		{401, false},
		{404, false},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		te := classifyByStatusCode(models.ErrorKindStreamOpen, tt.status, cause)
		assert.Equal(t, models.ErrorKindStreamOpen, te.Kind, "status %d", tt.status)
		assert.Equal(t, tt.retryable, te.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.status, te.StatusCode)
		assert.ErrorIs(t, te, cause)
	}
}

func TestClassifyTransportError_KeepsKind(t *testing.T) {
	timeout := fmt.Errorf("read body: %w", context.DeadlineExceeded)
	te := classifyTransportError(models.ErrorKindStreamRead, "openai", timeout)
	assert.Equal(t, models.ErrorKindStreamRead, te.Kind, "a backend deadline is not a cancellation")
	assert.ErrorIs(t, te, context.DeadlineExceeded)

	te = classifyTransportError(models.ErrorKindStreamOpen, "anthropic", timeout)
	assert.Equal(t, models.ErrorKindStreamOpen, te.Kind)

	te = classifyTransportError(models.ErrorKindStreamRead, "openai", errors.New("unexpected EOF"))
	assert.Equal(t, models.ErrorKindStreamRead, te.Kind)
	assert.True(t, te.Retryable)
}
