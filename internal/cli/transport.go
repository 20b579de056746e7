package cli

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mfateev/llm-relay-bot/internal/turn"
)

// ConsoleChatID is the chat id of the single local conversation.
const ConsoleChatID int64 = 1

var errNotAttached = errors.New("console transport is not attached to a program")

// Transport renders turns into the TUI. Each placeholder becomes a reply
// block that later edits overwrite in place.
type Transport struct {
	mu     sync.Mutex
	send   func(tea.Msg)
	nextID int64
}

var _ turn.Transport = (*Transport)(nil)

// NewTransport creates a Transport. Attach must be called before use.
func NewTransport() *Transport {
	return &Transport{}
}

// Attach routes messages to a running program, normally (*tea.Program).Send.
func (t *Transport) Attach(send func(tea.Msg)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.send = send
}

func (t *Transport) SendPlaceholder(ctx context.Context, chatID int64) (turn.MessageHandle, error) {
	t.mu.Lock()
	t.nextID++
	h := turn.MessageHandle{ChatID: chatID, MessageID: t.nextID}
	t.mu.Unlock()
	return h, t.emit(ctx, PlaceholderMsg{Handle: h})
}

func (t *Transport) EditMessage(ctx context.Context, h turn.MessageHandle, text string) error {
	return t.emit(ctx, RenderMsg{Handle: h, Text: text})
}

func (t *Transport) emit(ctx context.Context, msg tea.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	send := t.send
	t.mu.Unlock()
	if send == nil {
		return errNotAttached
	}
	send(msg)
	return nil
}

// LineTransport keeps the latest text of each message for line-mode output,
// where edits cannot be shown in place.
type LineTransport struct {
	mu     sync.Mutex
	nextID int64
	texts  map[int64]string
}

var _ turn.Transport = (*LineTransport)(nil)

// NewLineTransport creates a LineTransport.
func NewLineTransport() *LineTransport {
	return &LineTransport{texts: make(map[int64]string)}
}

func (t *LineTransport) SendPlaceholder(_ context.Context, chatID int64) (turn.MessageHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.texts[t.nextID] = turn.PlaceholderText
	return turn.MessageHandle{ChatID: chatID, MessageID: t.nextID}, nil
}

func (t *LineTransport) EditMessage(_ context.Context, h turn.MessageHandle, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts[h.MessageID] = text
	return nil
}

// TakeLatest returns and forgets the newest message, if any.
func (t *LineTransport) TakeLatest() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	text, ok := t.texts[t.nextID]
	delete(t.texts, t.nextID)
	return text, ok
}
