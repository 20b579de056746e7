// Package bot polls Telegram for messages and dispatches them to command
// handling or to a streamed LLM turn.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mfateev/llm-relay-bot/internal/commands"
	"github.com/mfateev/llm-relay-bot/internal/models"
	"github.com/mfateev/llm-relay-bot/internal/telegram"
	"github.com/mfateev/llm-relay-bot/internal/turn"
)

const (
	DefaultPollTimeout   = 30 * time.Second
	DefaultMaxConcurrent = 64
	DefaultQueueSize     = 256
	defaultRetryDelay    = 3 * time.Second
)

// BusyReply answers a prompt that arrives while the turn queue is full.
const BusyReply = "Too many requests in progress, please try again in a moment."

// Source is the subset of the Bot API the dispatcher needs.
type Source interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error)
}

// TurnRunner runs one streamed turn.
type TurnRunner interface {
	Handle(ctx context.Context, req turn.Request) (turn.Outcome, error)
}

// Config tunes the dispatcher.
type Config struct {
	// BotName, when set, ignores commands addressed to other bots.
	BotName       string
	PollTimeout   time.Duration
	MaxConcurrent int
	// QueueSize bounds prompts waiting for a free turn slot.
	QueueSize  int
	RetryDelay time.Duration
}

// Dispatcher reads updates and hands prompts to a bounded turn pool through a
// queue. The poll loop never waits on the pool, so commands such as /clear
// are answered while turns stream.
type Dispatcher struct {
	config Config
	source Source
	turns  TurnRunner
	router *commands.Router
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(config Config, source Source, turns TurnRunner, router *commands.Router, logger *zap.Logger) *Dispatcher {
	if config.PollTimeout < 0 {
		config.PollTimeout = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{config: config, source: source, turns: turns, router: router, logger: logger}
}

// Run polls until ctx is cancelled, then waits for in-flight turns, which
// observe the same cancellation, and returns nil.
//
// Polling and turn execution run as separate members of one group: the poll
// loop feeds the queue and closes it on shutdown; the runner drains it into
// the pool and waits for the pool.
func (d *Dispatcher) Run(ctx context.Context) error {
	queue := make(chan turn.Request, d.config.QueueSize)

	d.logger.Info("polling for updates",
		zap.Duration("poll_timeout", d.config.PollTimeout),
		zap.Int("max_concurrent_turns", d.config.MaxConcurrent),
		zap.Int("queue_size", d.config.QueueSize))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		d.poll(gctx, queue)
		return nil
	})
	g.Go(func() error {
		d.runTurns(gctx, queue)
		return nil
	})
	return g.Wait()
}

func (d *Dispatcher) poll(ctx context.Context, queue chan<- turn.Request) {
	var offset int64
	for ctx.Err() == nil {
		updates, err := d.source.GetUpdates(ctx, offset, d.config.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(d.config.RetryDelay):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			d.dispatch(ctx, queue, u)
		}
	}
	d.logger.Info("stopping dispatcher, waiting for in-flight turns")
}

// runTurns starts a turn per queued request. Go blocks while the pool is
// full, which holds back the queue and never the poll loop.
func (d *Dispatcher) runTurns(ctx context.Context, queue <-chan turn.Request) {
	turns := pool.New().WithMaxGoroutines(d.config.MaxConcurrent)
	defer turns.Wait()
	for req := range queue {
		turns.Go(func() {
			// Failures were already rendered into the chat and logged by the handler.
			_, _ = d.turns.Handle(ctx, req)
		})
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, queue chan<- turn.Request, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return
	}
	userID := models.UserID(msg.From.ID)

	if cmd, ok := commands.Parse(msg.Text, d.config.BotName); ok {
		cmd.UserID = userID
		d.runCommand(ctx, msg.Chat.ID, cmd)
		return
	}

	req := turn.Request{
		UserID:   userID,
		ChatID:   msg.Chat.ID,
		Username: msg.From.DisplayName(),
		Prompt:   msg.Text,
	}
	select {
	case queue <- req:
	default:
		d.logger.Warn("turn queue full, rejecting prompt",
			zap.Stringer("user_id", userID), zap.Int("queue_size", d.config.QueueSize))
		d.reply(ctx, msg.Chat.ID, "busy", BusyReply)
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, chatID int64, cmd commands.Command) {
	reply, err := d.router.Handle(ctx, cmd)
	if err != nil {
		d.logger.Error("command failed", zap.String("command", string(cmd.Name)), zap.Error(err))
		return
	}
	d.reply(ctx, chatID, string(cmd.Name), reply)
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, what, text string) {
	if _, err := d.source.SendMessage(ctx, chatID, text); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("reply not delivered", zap.String("reply", what), zap.Error(err))
	}
}
