package cli

import "github.com/mfateev/llm-relay-bot/internal/turn"

// PlaceholderMsg is sent when a turn opens its reply block.
type PlaceholderMsg struct {
	Handle turn.MessageHandle
}

// RenderMsg replaces the content of a reply block.
type RenderMsg struct {
	Handle turn.MessageHandle
	Text   string
}

// TurnDoneMsg is sent when a turn finished, successfully or not.
type TurnDoneMsg struct {
	Outcome turn.Outcome
	Err     error
}
