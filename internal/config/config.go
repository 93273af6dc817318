package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedreader/internal/converter"
	"feedreader/internal/relay"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBPath string `env:"DB_PATH" envDefault:"db.sqlite"`

	Relays           []string      `env:"RELAYS"             envSeparator:","`
	RelayTimeout     time.Duration `env:"RELAY_TIMEOUT"      envDefault:"12s"`
	ConverterURL     string        `env:"CONVERTER_URL"`
	UserAgent        string        `env:"USER_AGENT"`
	MaxDiscoveryHops int           `env:"MAX_DISCOVERY_HOPS" envDefault:"1"`

	RefreshSpec      string `env:"REFRESH_SPEC"       envDefault:"@every 15m"`
	FetchConcurrency int    `env:"FETCH_CONCURRENCY"  envDefault:"0"`
	SeedDefaultFeeds bool   `env:"SEED_DEFAULT_FEEDS" envDefault:"true"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and fills in defaults that depend on other
// packages.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if len(cfg.Relays) == 0 {
		cfg.Relays = append([]string(nil), relay.DefaultTemplates...)
	}

	if cfg.ConverterURL == "" {
		cfg.ConverterURL = converter.DefaultEndpoint
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = relay.DefaultUserAgent
	}

	if err = cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	if c.RelayTimeout <= 0 {
		errs = append(errs, errors.New("RELAY_TIMEOUT must be positive"))
	}

	if c.MaxDiscoveryHops < 0 {
		errs = append(errs, errors.New("MAX_DISCOVERY_HOPS must not be negative"))
	}

	if c.FetchConcurrency < 0 {
		errs = append(errs, errors.New("FETCH_CONCURRENCY must not be negative"))
	}

	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required with TELEGRAM_TOKEN"))
	}

	return errors.Join(errs...)
}
