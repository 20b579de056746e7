// Package turn orchestrates one user turn: snapshot the history, stream the
// reply into a single edited message, and commit the exchange.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfateev/llm-relay-bot/internal/aggregator"
	"github.com/mfateev/llm-relay-bot/internal/history"
	"github.com/mfateev/llm-relay-bot/internal/llm"
	"github.com/mfateev/llm-relay-bot/internal/models"
)

// State is the lifecycle position of a turn.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateCommitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is one inbound user message.
type Request struct {
	UserID   models.UserID
	ChatID   int64
	Username string
	Prompt   string
}

// Outcome summarizes a finished turn, successful or not.
type Outcome struct {
	TurnID   string
	State    State
	Reply    string
	Deltas   int
	Duration time.Duration
}

// Config holds the per-process settings shared by all turns.
type Config struct {
	ModelConfig  models.ModelConfig
	SystemPrompt string
}

// Handler runs turns. It holds no per-turn state and is safe for concurrent
// use; each Handle call is independent.
type Handler struct {
	config     Config
	store      history.Store
	backend    llm.Backend
	aggregator *aggregator.Aggregator
	transport  Transport
	logger     *zap.Logger

	// observe, when set, is told about every state transition. Tests use it.
	observe func(turnID string, state State)
}

// NewHandler creates a Handler.
func NewHandler(config Config, store history.Store, backend llm.Backend, agg *aggregator.Aggregator, transport Transport, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if agg == nil {
		agg = aggregator.New(aggregator.DefaultConfig(), logger)
	}
	return &Handler{
		config:     config,
		store:      store,
		backend:    backend,
		aggregator: agg,
		transport:  transport,
		logger:     logger,
	}
}

// Handle runs one turn to completion. The returned Outcome is always
// populated; the error is a *models.TurnError when the turn failed.
//
// History is only mutated when the stream completed. A failed final render
// still commits, since the context should match what was generated, and the
// render error is returned afterwards.
func (h *Handler) Handle(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	out := Outcome{TurnID: uuid.NewString(), State: StatePending}
	log := h.logger.With(
		zap.String("turn_id", out.TurnID),
		zap.Stringer("user_id", req.UserID),
		zap.Int64("chat_id", req.ChatID),
	)
	log.Info("user message", zap.String("username", req.Username), zap.String("prompt", req.Prompt))

	fail := func(err error) (Outcome, error) {
		h.transition(&out, StateFailed)
		out.Duration = time.Since(started)
		if models.IsKind(err, models.ErrorKindCanceled) {
			log.Info("turn canceled", zap.Stringer("state", out.State), zap.Int("deltas", out.Deltas))
		} else {
			log.Warn("turn failed", zap.Int("deltas", out.Deltas), zap.Error(err))
		}
		return out, err
	}

	if h.store == nil {
		return fail(models.NewTurnError(models.ErrorKindStoreUnavailable, "no history store configured", nil))
	}
	h.transition(&out, StatePending)

	handle, err := h.transport.SendPlaceholder(ctx, req.ChatID)
	if err != nil {
		if ctx.Err() != nil {
			return fail(models.NewCanceledError(ctx.Err()))
		}
		return fail(models.NewRenderError("send placeholder", err))
	}
	if r, ok := h.transport.(Releaser); ok {
		defer r.Release(handle)
	}

	userTurn := models.UserTurn(req.Prompt)
	snapshot := h.store.Snapshot(req.UserID)
	request := llm.Request{
		ModelConfig: h.config.ModelConfig,
		System:      h.config.SystemPrompt,
		Messages:    append(snapshot, userTurn),
	}

	h.transition(&out, StateStreaming)
	stream, err := h.backend.Stream(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return fail(models.NewCanceledError(ctx.Err()))
		}
		err = asStreamOpenError(err)
		h.notifyFailure(ctx, log, handle, err)
		return fail(err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Debug("closing generation stream", zap.Error(cerr))
		}
	}()

	result, err := h.aggregator.Run(ctx, stream, func(ctx context.Context, r aggregator.Render) error {
		return h.transport.EditMessage(ctx, handle, r.Text)
	})
	out.Reply = result.Text
	out.Deltas = result.Deltas
	if err != nil && !models.IsKind(err, models.ErrorKindRender) {
		return fail(err)
	}
	renderErr := err

	h.transition(&out, StateCommitting)
	h.store.Append(req.UserID, userTurn, models.AssistantTurn(result.Text))

	if renderErr != nil {
		return fail(renderErr)
	}
	h.transition(&out, StateDone)
	out.Duration = time.Since(started)
	log.Info("model reply",
		zap.String("reply", result.Text),
		zap.Int("deltas", result.Deltas),
		zap.Int("progress_renders", result.ProgressRenders),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

// notifyFailure replaces the placeholder with an error notice, best effort.
func (h *Handler) notifyFailure(ctx context.Context, log *zap.Logger, handle MessageHandle, err error) {
	if editErr := h.transport.EditMessage(ctx, handle, FailureNotice(err)); editErr != nil {
		log.Warn("failure notice not delivered", zap.Error(editErr))
	}
}

// FailureNotice is the user-visible text for a turn that could not start
// generating.
func FailureNotice(err error) string {
	var te *models.TurnError
	if errors.As(err, &te) && te.Retryable {
		return "⚠️ The model is unavailable right now, please try again later."
	}
	return fmt.Sprintf("⚠️ Failed to get a reply: %v", err)
}

func (h *Handler) transition(out *Outcome, state State) {
	out.State = state
	if h.observe != nil {
		h.observe(out.TurnID, state)
	}
}

func asStreamOpenError(err error) error {
	if _, ok := models.KindOf(err); ok {
		return err
	}
	return models.NewStreamOpenError("open generation stream", err)
}
