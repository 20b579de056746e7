// Package aggregator turns a generation stream into a bounded number of
// message edits.
//
// Every Interval-th delta produces a progress render of the accumulated text
// with a trailing in-progress marker; the end of the stream produces exactly
// one final render of the complete text. A stream failure produces one
// best-effort render of the partial text marked incomplete.
package aggregator

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/mfateev/llm-relay-bot/internal/llm"
	"github.com/mfateev/llm-relay-bot/internal/models"
)

const (
	DefaultInterval         = 5
	DefaultProgressSuffix   = " ..."
	DefaultIncompleteSuffix = "\n\n[response incomplete]"
)

// FinalPolicy decides what ends a generation.
type FinalPolicy int

const (
	// FinalOnStreamEnd drains the stream until io.EOF and ignores Final flags.
	FinalOnStreamEnd FinalPolicy = iota
	// FinalOnDoneFlag stops at the first delta flagged Final and closes the
	// stream without reading further.
	FinalOnDoneFlag
)

func (p FinalPolicy) String() string {
	switch p {
	case FinalOnStreamEnd:
		return "stream_end"
	case FinalOnDoneFlag:
		return "done_flag"
	default:
		return "unknown"
	}
}

// ParseFinalPolicy parses the configuration spelling of a policy.
func ParseFinalPolicy(s string) (FinalPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stream_end", "eof":
		return FinalOnStreamEnd, true
	case "done_flag", "done":
		return FinalOnDoneFlag, true
	default:
		return FinalOnStreamEnd, false
	}
}

// Stage tells the renderer which kind of update it is showing.
type Stage int

const (
	StageProgress   Stage = iota // throttled intermediate update
	StageFinal                   // authoritative complete text
	StageIncomplete              // partial text after a stream failure
)

func (s Stage) String() string {
	switch s {
	case StageProgress:
		return "progress"
	case StageFinal:
		return "final"
	case StageIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Render is one update of the visible message.
type Render struct {
	Stage  Stage
	Text   string
	Deltas int // deltas consumed when the render was issued
}

// RenderFunc shows a render to the user.
type RenderFunc func(ctx context.Context, r Render) error

// Config holds the aggregation policy.
type Config struct {
	Interval         int
	ProgressSuffix   string
	IncompleteSuffix string
	FinalPolicy      FinalPolicy
}

// DefaultConfig returns the default policy: a progress render every 5 deltas,
// final render at end of stream.
func DefaultConfig() Config {
	return Config{
		Interval:         DefaultInterval,
		ProgressSuffix:   DefaultProgressSuffix,
		IncompleteSuffix: DefaultIncompleteSuffix,
		FinalPolicy:      FinalOnStreamEnd,
	}
}

// Result describes a completed aggregation.
type Result struct {
	Text            string
	Deltas          int
	ProgressRenders int
}

// Aggregator drives one stream at a time per Run call; it holds no per-turn
// state and is safe for concurrent use.
type Aggregator struct {
	config Config
	logger *zap.Logger
}

// New creates an Aggregator. A non-positive Interval falls back to the
// default.
func New(config Config, logger *zap.Logger) *Aggregator {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{config: config, logger: logger}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.config
}

// Run consumes stream until it ends, fails, or ctx is cancelled.
//
// Errors:
//   - StreamReadFailure: the stream broke; the partial text was rendered
//     with the incomplete marker (best effort) and Result holds it.
//   - RenderFailure: the final render failed; Result still holds the
//     complete text.
//   - Canceled: ctx was cancelled; nothing further was rendered.
//
// Run does not close the stream except under FinalOnDoneFlag, where it stops
// reading early.
func (a *Aggregator) Run(ctx context.Context, stream llm.GenerationStream, render RenderFunc) (Result, error) {
	var (
		buf    strings.Builder
		result Result
	)

	for {
		delta, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Text = buf.String()
			// Only the turn's own context cancels; a deadline inside the
			// backend is a read failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, models.NewCanceledError(ctxErr)
			}
			return result, a.fail(ctx, result, err, render)
		}

		buf.WriteString(delta.Text)
		result.Deltas++

		if result.Deltas%a.config.Interval == 0 {
			result.ProgressRenders++
			progress := Render{Stage: StageProgress, Text: buf.String() + a.config.ProgressSuffix, Deltas: result.Deltas}
			if err := render(ctx, progress); err != nil {
				if ctx.Err() != nil {
					result.Text = buf.String()
					return result, models.NewCanceledError(ctx.Err())
				}
				a.logger.Debug("progress render failed", zap.Int("deltas", result.Deltas), zap.Error(err))
			}
		}

		if delta.Final && a.config.FinalPolicy == FinalOnDoneFlag {
			if err := stream.Close(); err != nil {
				a.logger.Debug("closing stream after done flag", zap.Error(err))
			}
			break
		}
	}

	result.Text = buf.String()
	if err := render(ctx, Render{Stage: StageFinal, Text: result.Text, Deltas: result.Deltas}); err != nil {
		if ctx.Err() != nil {
			return result, models.NewCanceledError(ctx.Err())
		}
		return result, models.NewRenderError("final render failed", err)
	}
	return result, nil
}

// fail renders the partial text as incomplete and returns the stream error
// as a StreamReadFailure.
func (a *Aggregator) fail(ctx context.Context, result Result, cause error, render RenderFunc) error {
	incomplete := Render{Stage: StageIncomplete, Text: result.Text + a.config.IncompleteSuffix, Deltas: result.Deltas}
	if err := render(ctx, incomplete); err != nil {
		a.logger.Warn("incomplete render failed", zap.Int("deltas", result.Deltas), zap.Error(err))
	}

	var te *models.TurnError
	if errors.As(cause, &te) && te.Kind == models.ErrorKindStreamRead {
		return cause
	}
	return models.NewStreamReadError("generation stream failed", cause)
}
