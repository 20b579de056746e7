package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mfateev/llm-relay-bot/internal/commands"
	"github.com/mfateev/llm-relay-bot/internal/models"
	"github.com/mfateev/llm-relay-bot/internal/turn"
)

// App is the line-mode console used when stdin is not a terminal: one prompt
// per line in, the final reply of each turn out.
type App struct {
	config    Config
	turns     TurnRunner
	router    *commands.Router
	transport *LineTransport
	in        io.Reader
	out       io.Writer
}

// NewApp creates a line-mode console. turns must render through transport.
func NewApp(config Config, turns TurnRunner, router *commands.Router, transport *LineTransport, in io.Reader, out io.Writer) *App {
	return &App{config: config, turns: turns, router: router, transport: transport, in: in, out: out}
}

// Run processes input until EOF, /exit, or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/exit" || line == "/quit" {
				return nil
			}
			a.handleLine(ctx, line)
		}
	}
}

func (a *App) handleLine(ctx context.Context, line string) {
	if cmd, ok := commands.Parse(line, ""); ok {
		cmd.UserID = a.config.UserID
		reply, err := a.router.Handle(ctx, cmd)
		if err != nil {
			fmt.Fprintf(a.out, "Error: %v\n\n", err)
			return
		}
		fmt.Fprintf(a.out, "%s\n\n", reply)
		return
	}

	_, err := a.turns.Handle(ctx, turn.Request{
		UserID:   a.config.UserID,
		ChatID:   ConsoleChatID,
		Username: a.config.Username,
		Prompt:   line,
	})
	text, shown := a.transport.TakeLatest()
	if shown && text != turn.PlaceholderText {
		fmt.Fprintf(a.out, "%s\n\n", text)
	}
	if err != nil && !models.IsKind(err, models.ErrorKindStreamOpen) && !models.IsKind(err, models.ErrorKindStreamRead) {
		fmt.Fprintf(a.out, "Error: %v\n\n", err)
	}
}
