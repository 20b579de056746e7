// Package relay wires the configured store, backend, aggregator and turn
// handler for a chat transport.
package relay

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mfateev/llm-relay-bot/internal/aggregator"
	"github.com/mfateev/llm-relay-bot/internal/commands"
	"github.com/mfateev/llm-relay-bot/internal/config"
	"github.com/mfateev/llm-relay-bot/internal/history"
	"github.com/mfateev/llm-relay-bot/internal/instructions"
	"github.com/mfateev/llm-relay-bot/internal/llm"
	"github.com/mfateev/llm-relay-bot/internal/turn"
)

// Relay is the transport-independent core of the bot.
type Relay struct {
	Store   history.Store
	Backend llm.Backend
	Turns   *turn.Handler
	Router  *commands.Router
}

// New builds a Relay from cfg rendering through transport. A nil backend
// creates the one named by cfg.LLM.
func New(cfg *config.Config, backend llm.Backend, transport turn.Transport, logger *zap.Logger) (*Relay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(cfg.LLM.Provider)
	if backend == nil {
		var err error
		backend, err = llm.NewBackend(llm.BackendConfig{
			Provider:   provider,
			APIKey:     cfg.LLM.ResolvedAPIKey(),
			BaseURL:    cfg.LLM.BaseURL,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("create LLM backend: %w", err)
		}
	}

	systemPrompt, err := instructions.Resolve(cfg.LLM.SystemPrompt, cfg.LLM.SystemPromptFile)
	if err != nil {
		return nil, err
	}

	store := history.NewInMemoryStore(cfg.Relay.HistoryWindow)
	agg := aggregator.New(cfg.AggregatorConfig(), logger.Named("aggregator"))
	modelConfig := cfg.LLM.ModelConfig()

	handler := turn.NewHandler(turn.Config{
		ModelConfig:  modelConfig,
		SystemPrompt: systemPrompt,
	}, store, backend, agg, transport, logger.Named("turn"))

	logger.Info("relay configured",
		zap.String("provider", provider),
		zap.String("model", modelConfig.Model),
		zap.Int("history_window", store.Window()),
		zap.Bool("system_prompt", systemPrompt != ""),
		zap.Int("throttle_interval", agg.Config().Interval),
		zap.Stringer("final_policy", agg.Config().FinalPolicy),
	)

	return &Relay{
		Store:   store,
		Backend: backend,
		Turns:   handler,
		Router:  commands.NewRouter(store, logger.Named("commands")),
	}, nil
}
