// Package models contains the shared types of the relay: conversation turns,
// model parameters and the typed turn errors.
package models

import "strconv"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// UserID is the stable identifier history is keyed by.
type UserID int64

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// ConversationTurn is a single message in a user's conversation.
// Turns are values; copying one never aliases another.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds a turn authored by the user.
func UserTurn(content string) ConversationTurn {
	return ConversationTurn{Role: RoleUser, Content: content}
}

// AssistantTurn builds a turn authored by the model.
func AssistantTurn(content string) ConversationTurn {
	return ConversationTurn{Role: RoleAssistant, Content: content}
}
