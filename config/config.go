// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (the Telegram token), use ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const defaultAPIBase = "https://i.instagram.com/api/v1"

type Config struct {
	// Telegram
	TelegramToken  string
	BotPollTimeout int // long-poll timeout in seconds

	// Instagram private API
	APIBase    string
	APITimeout time.Duration

	// Session storage
	SessionDir           string
	SessionEncryptionKey string // base64 32-byte key; empty disables at-rest encryption

	// HTTP (health/status/metrics)
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if the Telegram
// token is missing; use ValidateBotReady() when you actually start the poller. Missing
// optional variables disable features (e.g., session encryption).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	cfg.BotPollTimeout = 30
	if v := os.Getenv("BOT_POLL_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid BOT_POLL_TIMEOUT (positive seconds): %q", v)
		}
		cfg.BotPollTimeout = n
	}

	cfg.APIBase = os.Getenv("IG_API_BASE")
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}

	cfg.APITimeout = 30 * time.Second
	if v := os.Getenv("IG_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid IG_API_TIMEOUT (duration): %q", v)
		}
		cfg.APITimeout = d
	}

	cfg.SessionDir = os.Getenv("SESSION_DIR")
	if cfg.SessionDir == "" {
		cfg.SessionDir = "."
	}
	cfg.SessionEncryptionKey = os.Getenv("SESSION_ENCRYPTION_KEY")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateBotReady checks required fields before starting the Telegram poller.
func (c *Config) ValidateBotReady() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("missing telegram env: require TELEGRAM_BOT_TOKEN")
	}
	return nil
}
