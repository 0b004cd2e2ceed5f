// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, limiter) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Veyra API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis): permission cache, rate counters, volatile tokens.
	RedisURL string `env:"REDIS_URL,required"`

	// Cryptographic keys for access-token signing
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// Token lifetimes
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	SessionTTL     time.Duration `env:"SESSION_TTL"       envDefault:"168h"`

	// PermissionCacheTTL is the safety-net TTL on cached permission sets.
	// It bounds the staleness window if an explicit invalidation was missed.
	PermissionCacheTTL time.Duration `env:"PERMISSION_CACHE_TTL" envDefault:"10m"`

	// Rate limiting (per category: ceiling of requests per window)
	RateLimitGeneralLimit       int           `env:"RATE_LIMIT_GENERAL_LIMIT"        envDefault:"300"`
	RateLimitGeneralWindow      time.Duration `env:"RATE_LIMIT_GENERAL_WINDOW"       envDefault:"1m"`
	RateLimitAuthLimit          int           `env:"RATE_LIMIT_AUTH_LIMIT"           envDefault:"10"`
	RateLimitAuthWindow         time.Duration `env:"RATE_LIMIT_AUTH_WINDOW"          envDefault:"1m"`
	RateLimitRegistrationLimit  int           `env:"RATE_LIMIT_REGISTRATION_LIMIT"   envDefault:"5"`
	RateLimitRegistrationWindow time.Duration `env:"RATE_LIMIT_REGISTRATION_WINDOW"  envDefault:"1h"`
	RateLimitResetLimit         int           `env:"RATE_LIMIT_RESET_LIMIT"          envDefault:"3"`
	RateLimitResetWindow        time.Duration `env:"RATE_LIMIT_RESET_WINDOW"         envDefault:"1h"`

	// RateLimitAllowlist holds client identities (IPs or API keys) that bypass
	// counting entirely. Comma-separated.
	RateLimitAllowlist []string `env:"RATE_LIMIT_ALLOWLIST" envSeparator:","`

	// RateLimitFailOpen selects the behavior when the counter store is
	// unreachable: allow (true, default) or deny (false). The limiter is
	// defense-in-depth layered atop authentication and lockout, so failing
	// open is the recommended posture.
	RateLimitFailOpen bool `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"true"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
