// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinPollInterval is the floor enforced on the heartbeat poll interval.
const MinPollInterval = 30 * time.Second

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"CILEDGER_DB_PATH" envDefault:"./data/ciledger.db"`
	ServerHost string `env:"CILEDGER_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"CILEDGER_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"CILEDGER_ENV" envDefault:"development"`
	LogLevel   string `env:"CILEDGER_LOG_LEVEL" envDefault:"info"`

	// Webhook configuration. An empty secret disables signature
	// verification; production deployments should always set it.
	WebhookHMACSecret string `env:"CILEDGER_WEBHOOK_HMAC_SECRET"`
	WebhookSource     string `env:"CILEDGER_WEBHOOK_SOURCE" envDefault:"Jenkins"`

	// API rate limiting (per API key)
	RateLimitRPS   float64 `env:"CILEDGER_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"CILEDGER_RATE_LIMIT_BURST" envDefault:"20"`

	// Heartbeat poller
	PollEnabled  bool          `env:"CILEDGER_POLL_ENABLED" envDefault:"false"`
	PollInterval time.Duration `env:"CILEDGER_POLL_INTERVAL" envDefault:"5m"`

	// Seeding configuration
	DoSeed bool `env:"CILEDGER_DO_SEED" envDefault:"false"` // Enable database seeding
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// WebhookVerificationEnabled returns true if an HMAC secret is configured.
func (c Config) WebhookVerificationEnabled() bool {
	return c.WebhookHMACSecret != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("CILEDGER_SERVER_PORT must be in 1..65535, got %d", cfg.ServerPort)
	}
	if cfg.RateLimitRPS <= 0 {
		return nil, fmt.Errorf("CILEDGER_RATE_LIMIT_RPS must be positive, got %g", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst < 1 {
		return nil, fmt.Errorf("CILEDGER_RATE_LIMIT_BURST must be at least 1, got %d", cfg.RateLimitBurst)
	}
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}

	return cfg, nil
}
