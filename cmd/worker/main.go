// Worker executable for llm-relay-bot.
//
// Long-polls the Telegram Bot API and answers every message with a streamed
// LLM reply, edited in place as it is generated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mfateev/llm-relay-bot/internal/bot"
	"github.com/mfateev/llm-relay-bot/internal/commands"
	"github.com/mfateev/llm-relay-bot/internal/config"
	"github.com/mfateev/llm-relay-bot/internal/logging"
	"github.com/mfateev/llm-relay-bot/internal/relay"
	"github.com/mfateev/llm-relay-bot/internal/telegram"
	"github.com/mfateev/llm-relay-bot/internal/version"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:     "relay-worker",
	Short:   "Relay Telegram messages to an LLM and stream the replies back",
	Version: version.GitCommit,
	Long: `relay-worker runs the Telegram bot.

Each message starts a turn: a "..." placeholder is sent, the model reply is
streamed into it with an edit every few chunks, and the exchange is kept as
per-user context for the next message.

Commands: /start, /clear (forget the conversation), /help.

Configuration is read from relay.yaml (or --config) and the environment:
TELEGRAM_BOT_TOKEN, OPENAI_API_KEY, OPENAI_API_BASE, ANTHROPIC_API_KEY.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./relay.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(true); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client := telegram.NewClient(telegram.Config{
		APIBase:        cfg.Telegram.APIBase,
		Token:          cfg.Telegram.Token,
		RequestTimeout: cfg.Telegram.RequestTimeout,
		EditRate:       cfg.Telegram.EditRate,
		EditBurst:      cfg.Telegram.EditBurst,
	}, logger.Named("telegram"))

	botName := ""
	if me, err := client.GetMe(ctx); err != nil {
		logger.Warn("getMe failed; commands addressed to other bots will not be filtered", zap.Error(err))
	} else {
		botName = me.Username
		logger.Info("starting bot", zap.String("username", me.Username), zap.String("version", version.GitCommit))
	}
	if err := client.SetMyCommands(ctx, menuCommands()); err != nil {
		logger.Warn("setMyCommands failed", zap.Error(err))
	}

	r, err := relay.New(cfg, nil, telegram.NewTransport(client), logger)
	if err != nil {
		return err
	}

	dispatcher := bot.NewDispatcher(bot.Config{
		BotName:       botName,
		PollTimeout:   cfg.Telegram.PollTimeout,
		MaxConcurrent: cfg.Telegram.MaxConcurrentTurns,
		QueueSize:     cfg.Telegram.TurnQueueSize,
	}, client, r.Turns, r.Router, logger.Named("dispatcher"))

	err = dispatcher.Run(ctx)
	logger.Info("shut down")
	return err
}

func menuCommands() []telegram.BotCommand {
	var out []telegram.BotCommand
	for _, c := range commands.BotCommands() {
		out = append(out, telegram.BotCommand{Command: c.Command, Description: c.Description})
	}
	return out
}
