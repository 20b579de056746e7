package turn

import "context"

// PlaceholderText is shown while the reply is being generated.
const PlaceholderText = "..."

// MessageHandle identifies a sent message for later edits.
type MessageHandle struct {
	ChatID    int64
	MessageID int64
}

// Transport is the chat surface a turn renders into.
type Transport interface {
	// SendPlaceholder creates a visible "..." message in the chat.
	SendPlaceholder(ctx context.Context, chatID int64) (MessageHandle, error)
	// EditMessage replaces the visible content of a sent message.
	EditMessage(ctx context.Context, handle MessageHandle, text string) error
}

// Releaser is implemented by transports that keep state per message. The
// handler calls Release once the turn stops editing the message.
type Releaser interface {
	Release(handle MessageHandle)
}
