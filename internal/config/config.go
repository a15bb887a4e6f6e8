// Copyright (c) 2026 PillsMe
//
// This file is part of pillsme-auth.
//
// pillsme-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@pillsme.app for commercial licensing options.

// Package config loads and validates the server configuration from a
// YAML file with environment variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pillsme/pillsme-auth/internal/datastore"
	"github.com/pillsme/pillsme-auth/pkg/passkey"
	"github.com/pillsme/pillsme-auth/pkg/ratelimit"
)

// Environment values recognized in the top-level environment field.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the top-level server configuration.
type Config struct {
	// Environment is the deployment environment: "development",
	// "staging" or "production". Production requires secure cookies.
	Environment string `yaml:"environment" json:"environment"`

	// Listen is the address the HTTP server binds to.
	// Default: ":8443"
	Listen string `yaml:"listen" json:"listen"`

	// SessionSecret is the HMAC key for session tokens. Required;
	// set via PM_SESSION_SECRET in deployed environments.
	SessionSecret string `yaml:"session_secret" json:"-"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Passkey configures the WebAuthn relying party.
	Passkey passkey.Config `yaml:"passkey" json:"passkey"`

	// Datastore configures the backing database.
	Datastore datastore.Config `yaml:"datastore" json:"datastore"`

	// RateLimit configures per-client throttling of ceremony endpoints.
	RateLimit ratelimit.Config `yaml:"rate_limit" json:"rate_limit"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics" json:"metrics"`
}

// Environment variables that override file values. Secrets should come
// from the environment rather than the config file.
const (
	EnvVarSessionSecret = "PM_SESSION_SECRET"
	EnvVarRPID          = "PM_RP_ID"
	EnvVarRPOrigins     = "PM_RP_ORIGINS"
	EnvVarDatabaseDSN   = "PM_DATABASE_DSN"
	EnvVarEnvironment   = "PM_ENVIRONMENT"
)

// Load reads configuration from path, applies environment overrides and
// defaults, and validates the result. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvVarSessionSecret); v != "" {
		c.SessionSecret = v
	}
	if v := os.Getenv(EnvVarRPID); v != "" {
		c.Passkey.RPID = v
	}
	if v := os.Getenv(EnvVarRPOrigins); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.Passkey.RPOrigins = origins
	}
	if v := os.Getenv(EnvVarDatabaseDSN); v != "" {
		c.Datastore.DSN = v
	}
	if v := os.Getenv(EnvVarEnvironment); v != "" {
		c.Environment = v
	}
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Listen == "" {
		c.Listen = ":8443"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Datastore.Driver == "" {
		c.Datastore.Driver = datastore.DriverSQLite
	}
	if c.Datastore.DSN == "" && c.Datastore.Driver == datastore.DriverSQLite {
		c.Datastore.DSN = "pillsme-auth.db"
	}
	c.Passkey.SetDefaults()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("session secret is required (set session_secret or %s)", EnvVarSessionSecret)
	}
	if c.Environment == EnvProduction && len(c.SessionSecret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes in production")
	}
	if c.Datastore.DSN == "" {
		return fmt.Errorf("database DSN is required (set datastore.dsn or %s)", EnvVarDatabaseDSN)
	}
	if err := c.Passkey.Validate(); err != nil {
		return fmt.Errorf("invalid passkey config: %w", err)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
