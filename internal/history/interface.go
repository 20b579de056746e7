// Package history provides per-user conversation history with a bounded
// retention window.
package history

import "github.com/mfateev/llm-relay-bot/internal/models"

// DefaultWindow is the number of turns retained per user when no window is
// configured.
const DefaultWindow = 10

// Store is the interface for managing per-user conversation history.
//
// Operations on the same user are mutually exclusive; operations on
// different users never wait on each other.
type Store interface {
	// Snapshot returns a copy of the user's history, oldest first.
	// The result is empty, never nil, when the user has no history.
	Snapshot(userID models.UserID) []models.ConversationTurn

	// Append adds turns in order and evicts the oldest turns until the
	// history fits the window.
	Append(userID models.UserID, turns ...models.ConversationTurn)

	// Clear removes all turns for the user. No-op if absent.
	Clear(userID models.UserID)

	// Len returns the number of turns currently retained for the user.
	Len(userID models.UserID) int

	// Window returns the retention bound.
	Window() int
}
