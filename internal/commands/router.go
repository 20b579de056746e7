// Package commands parses and answers the bot's slash commands.
package commands

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mfateev/llm-relay-bot/internal/history"
	"github.com/mfateev/llm-relay-bot/internal/models"
)

// Name identifies a supported command.
type Name string

const (
	Start Name = "start"
	Clear Name = "clear"
	Help  Name = "help"
)

// Command is a parsed slash command.
type Command struct {
	Name   Name
	Args   string
	UserID models.UserID
}

type descriptor struct {
	name        Name
	description string
}

// Order matters: /help lists commands in this order.
var supported = []descriptor{
	{Start, "Start the bot"},
	{Clear, "Clear chat history"},
	{Help, "Display this message"},
}

const (
	StartReply = "Hello!"
	ClearReply = "Chat history cleared"
)

// Parse recognizes "/name", "/name args" and "/name@botname". It reports
// false for plain text and for unknown commands, which are then treated as
// prompts. A non-empty botName rejects commands addressed to another bot.
func Parse(text, botName string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, target, addressed := strings.Cut(head, "@")
	if addressed && botName != "" && !strings.EqualFold(target, botName) {
		return Command{}, false
	}
	name := Name(strings.ToLower(head))
	for _, d := range supported {
		if d.name == name {
			return Command{Name: name, Args: strings.TrimSpace(args)}, true
		}
	}
	return Command{}, false
}

// HelpText lists the supported commands.
func HelpText() string {
	var b strings.Builder
	b.WriteString("These commands are supported:\n\n")
	for i, d := range supported {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("/" + string(d.name) + " - " + d.description)
	}
	return b.String()
}

// Router executes commands against the history store.
type Router struct {
	store  history.Store
	logger *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(store history.Store, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: store, logger: logger}
}

// Handle executes cmd and returns the reply to send. /clear does not wait for
// in-flight turns of the same user; a turn that commits afterwards wins.
func (r *Router) Handle(_ context.Context, cmd Command) (string, error) {
	switch cmd.Name {
	case Start:
		return StartReply, nil
	case Clear:
		if r.store == nil {
			return "", models.NewTurnError(models.ErrorKindStoreUnavailable, "no history store configured", nil)
		}
		r.store.Clear(cmd.UserID)
		r.logger.Info("history cleared", zap.Stringer("user_id", cmd.UserID))
		return ClearReply, nil
	case Help:
		return HelpText(), nil
	default:
		return "", fmt.Errorf("unsupported command /%s", cmd.Name)
	}
}

// BotCommand is a command name with its menu description.
type BotCommand struct {
	Command     string
	Description string
}

// BotCommands returns the supported commands for menu registration.
func BotCommands() []BotCommand {
	out := make([]BotCommand, len(supported))
	for i, d := range supported {
		out[i] = BotCommand{Command: string(d.name), Description: d.description}
	}
	return out
}
