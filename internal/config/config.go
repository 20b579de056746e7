// Package config loads relay settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mfateev/llm-relay-bot/internal/aggregator"
	"github.com/mfateev/llm-relay-bot/internal/history"
	"github.com/mfateev/llm-relay-bot/internal/models"
)

// DefaultConfigName is the file searched for in the working directory when
// no explicit path is given (relay.yaml).
const DefaultConfigName = "relay"

// Config stores all configuration of the relay.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Log      LogConfig      `mapstructure:"log"`
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	Token              string        `mapstructure:"token"`
	APIBase            string        `mapstructure:"api_base"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"`    // long-poll wait
	RequestTimeout     time.Duration `mapstructure:"request_timeout"` // per call, on top of the poll wait
	EditRate           float64       `mapstructure:"edit_rate"`       // sends+edits per second
	EditBurst          int           `mapstructure:"edit_burst"`
	MaxConcurrentTurns int           `mapstructure:"max_concurrent_turns"`
	TurnQueueSize      int           `mapstructure:"turn_queue_size"` // prompts waiting for a turn slot
}

// LLMConfig selects and tunes the generation backend.
type LLMConfig struct {
	Provider     string   `mapstructure:"provider"` // "openai" (any compatible API) or "anthropic"
	Model        string   `mapstructure:"model"`
	BaseURL      string   `mapstructure:"base_url"`
	APIKey       string   `mapstructure:"api_key"`
	MaxTokens    int      `mapstructure:"max_tokens"`
	Temperature  *float64 `mapstructure:"temperature"` // unset leaves the profile or provider default
	MaxRetries   int      `mapstructure:"max_retries"`
	SystemPrompt string   `mapstructure:"system_prompt"`
	// SystemPromptFile is appended to SystemPrompt when set.
	SystemPromptFile string `mapstructure:"system_prompt_file"`
	FinalPolicy      string `mapstructure:"final_policy"` // "stream_end" or "done_flag"

	// Provider-specific keys, read from OPENAI_API_KEY and ANTHROPIC_API_KEY.
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
}

// RelayConfig holds the conversation and streaming policy.
type RelayConfig struct {
	HistoryWindow    int    `mapstructure:"history_window"`
	ThrottleInterval int    `mapstructure:"throttle_interval"`
	ProgressSuffix   string `mapstructure:"progress_suffix"`
	IncompleteSuffix string `mapstructure:"incomplete_suffix"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration. An empty path searches ./relay.yaml and is not an
// error when absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// telegram.poll_timeout is read from TELEGRAM_POLL_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.request_timeout", "10s")
	v.SetDefault("telegram.edit_rate", 20.0)
	v.SetDefault("telegram.edit_burst", 5)
	v.SetDefault("telegram.max_concurrent_turns", 64)
	v.SetDefault("telegram.turn_queue_size", 256)

	// Model and max_tokens default per provider through the profile registry;
	// they are declared here so the environment can set them. Temperature has
	// no default so an explicit 0 is distinguishable from unset.
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.system_prompt_file", "")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.final_policy", aggregator.FinalOnStreamEnd.String())

	v.SetDefault("relay.history_window", history.DefaultWindow)
	v.SetDefault("relay.throttle_interval", aggregator.DefaultInterval)
	v.SetDefault("relay.progress_suffix", aggregator.DefaultProgressSuffix)
	v.SetDefault("relay.incomplete_suffix", aggregator.DefaultIncompleteSuffix)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// bindEnv maps the conventional variable names onto config keys, in
// addition to the automatic SECTION_KEY names.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.token":        {"TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN", "TELOXIDE_TOKEN"},
		"llm.base_url":          {"LLM_BASE_URL", "OPENAI_API_BASE", "OPENAI_BASE_URL"},
		"llm.openai_api_key":    {"OPENAI_API_KEY"},
		"llm.anthropic_api_key": {"ANTHROPIC_API_KEY"},
		"llm.temperature":       {"LLM_TEMPERATURE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// ResolvedAPIKey returns llm.api_key, falling back to the provider's own
// environment variable.
func (c LLMConfig) ResolvedAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if strings.EqualFold(c.Provider, "anthropic") {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// ModelConfig converts to the per-request model settings, with unset values
// filled from the built-in profiles.
func (c LLMConfig) ModelConfig() models.ModelConfig {
	return models.NewDefaultRegistry().Apply(models.ModelConfig{
		Provider:    strings.ToLower(c.Provider),
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
}

// AggregatorConfig converts the relay policy for the aggregator. An unknown
// final policy falls back to stream end; Validate reports it.
func (c *Config) AggregatorConfig() aggregator.Config {
	policy, _ := aggregator.ParseFinalPolicy(c.LLM.FinalPolicy)
	return aggregator.Config{
		Interval:         c.Relay.ThrottleInterval,
		ProgressSuffix:   c.Relay.ProgressSuffix,
		IncompleteSuffix: c.Relay.IncompleteSuffix,
		FinalPolicy:      policy,
	}
}

// Validate reports every problem at once. The Telegram token is only
// required when requireTelegram is set; the console client runs without it.
func (c *Config) Validate(requireTelegram bool) error {
	var errs []error
	if requireTelegram && c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required (set TELEGRAM_BOT_TOKEN)"))
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "":
	case "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported (supported: openai, anthropic)", c.LLM.Provider))
	}
	if c.LLM.ResolvedAPIKey() == "" && c.LLM.BaseURL == "" {
		errs = append(errs, fmt.Errorf("no API key for provider %q (set llm.api_key or the provider's API key variable)", c.LLM.Provider))
	}
	if _, ok := aggregator.ParseFinalPolicy(c.LLM.FinalPolicy); !ok {
		errs = append(errs, fmt.Errorf("llm.final_policy %q is not one of stream_end, done_flag", c.LLM.FinalPolicy))
	}
	if c.Relay.HistoryWindow <= 0 {
		errs = append(errs, fmt.Errorf("relay.history_window must be positive, got %d", c.Relay.HistoryWindow))
	}
	if c.Relay.ThrottleInterval <= 0 {
		errs = append(errs, fmt.Errorf("relay.throttle_interval must be positive, got %d", c.Relay.ThrottleInterval))
	}
	return errors.Join(errs...)
}
