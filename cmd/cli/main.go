// Interactive console for llm-relay-bot.
//
// Chats with the configured model locally, using the same history window,
// streaming and commands as the Telegram bot. A full-screen UI is used when
// attached to a terminal; otherwise one prompt is read per line and each
// final reply is printed.
//
// Usage:
//
//	relay-cli                          Start the console UI
//	echo "hello" | relay-cli           Line mode
//	relay-cli --config relay.yaml -v   Debug logs go to --log-file
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/mfateev/llm-relay-bot/internal/cli"
	"github.com/mfateev/llm-relay-bot/internal/config"
	"github.com/mfateev/llm-relay-bot/internal/logging"
	"github.com/mfateev/llm-relay-bot/internal/models"
	"github.com/mfateev/llm-relay-bot/internal/relay"
	"github.com/mfateev/llm-relay-bot/internal/version"
)

var (
	configPath string
	verbose    bool
	logFile    string
	noColor    bool
	inline     bool
)

var rootCmd = &cobra.Command{
	Use:          "relay-cli",
	Short:        "Chat with the relay's model from the terminal",
	Version:      version.GitCommit,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./relay.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file (console UI logs nothing otherwise)")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().BoolVar(&inline, "inline", false, "do not use the alternate screen")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
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
	if err := cfg.Validate(false); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	logger, err := newLogger(cfg, interactive)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	consoleCfg := cli.Config{
		Model:    cfg.LLM.Model,
		Provider: cfg.LLM.Provider,
		UserID:   models.UserID(os.Getuid()),
		Username: os.Getenv("USER"),
		NoColor:  noColor,
		Inline:   inline,
	}

	if !interactive {
		// Line mode handles ctrl-c itself so an interrupted turn is not committed.
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		transport := cli.NewLineTransport()
		r, err := relay.New(cfg, nil, transport, logger)
		if err != nil {
			return err
		}
		return cli.NewApp(consoleCfg, r.Turns, r.Router, transport, os.Stdin, os.Stdout).Run(ctx)
	}

	transport := cli.NewTransport()
	r, err := relay.New(cfg, nil, transport, logger)
	if err != nil {
		return err
	}
	return cli.Run(ctx, consoleCfg, r.Turns, r.Router, transport)
}

// newLogger keeps the terminal clean in UI mode: logs go to --log-file or
// nowhere.
func newLogger(cfg *config.Config, interactive bool) (*zap.Logger, error) {
	if logFile != "" {
		return logging.New(cfg.Log, verbose, logFile)
	}
	if interactive {
		return zap.NewNop(), nil
	}
	return logging.New(cfg.Log, verbose)
}
