package telegram

import (
	"context"
	"sync"

	"github.com/mfateev/llm-relay-bot/internal/turn"
)

// Transport adapts a Client to turn.Transport. Text longer than one message
// continues in follow-up messages sent after the placeholder; later edits
// update them in place.
type Transport struct {
	client *Client

	mu            sync.Mutex
	continuations map[turn.MessageHandle][]continuation
}

type continuation struct {
	messageID int64
	text      string
}

var (
	_ turn.Transport = (*Transport)(nil)
	_ turn.Releaser  = (*Transport)(nil)
)

// NewTransport wraps client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client, continuations: make(map[turn.MessageHandle][]continuation)}
}

func (t *Transport) SendPlaceholder(ctx context.Context, chatID int64) (turn.MessageHandle, error) {
	msg, err := t.client.SendMessage(ctx, chatID, turn.PlaceholderText)
	if err != nil {
		return turn.MessageHandle{}, err
	}
	return turn.MessageHandle{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// EditMessage shows text across the placeholder and as many continuation
// messages as it needs. Edits of one handle must not run concurrently.
func (t *Transport) EditMessage(ctx context.Context, h turn.MessageHandle, text string) error {
	chunks := SplitText(text, MaxMessageLength)
	if err := t.client.EditMessageText(ctx, h.ChatID, h.MessageID, chunks[0]); err != nil {
		return err
	}
	if len(chunks) == 1 {
		return nil
	}

	t.mu.Lock()
	conts := t.continuations[h]
	t.mu.Unlock()

	var err error
	for i, chunk := range chunks[1:] {
		if i < len(conts) {
			if conts[i].text == chunk {
				continue
			}
			if err = t.client.EditMessageText(ctx, h.ChatID, conts[i].messageID, chunk); err != nil {
				break
			}
			conts[i].text = chunk
			continue
		}
		var msg Message
		if msg, err = t.client.SendMessage(ctx, h.ChatID, chunk); err != nil {
			break
		}
		conts = append(conts, continuation{messageID: msg.MessageID, text: chunk})
	}

	t.mu.Lock()
	t.continuations[h] = conts
	t.mu.Unlock()
	return err
}

// Release forgets the continuation messages of a finished turn.
func (t *Transport) Release(h turn.MessageHandle) {
	t.mu.Lock()
	delete(t.continuations, h)
	t.mu.Unlock()
}

// tracked reports how many handles still hold continuation state.
func (t *Transport) tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.continuations)
}
