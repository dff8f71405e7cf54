// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package config loads and validates FleetGlass configuration.
//
// Configuration is layered with Koanf v2: struct defaults, then an optional
// YAML config file, then environment variables (highest precedence).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the FleetGlass server and simulator.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Relay     RelayConfig     `koanf:"relay"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
	Simulator SimulatorConfig `koanf:"simulator"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RelayConfig configures the websocket relay listener.
// The relay listens on its own port, separate from the HTTP API.
type RelayConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`

	// SendBuffer is the per-connection outbound queue depth. A receiver
	// whose queue fills up is dropped rather than allowed to stall the hub.
	SendBuffer int `koanf:"send_buffer"`
}

// Addr returns the host:port listen address.
func (c RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the DuckDB location store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// NATSConfig configures the optional JetStream event pipeline that bridges
// HTTP-only producers into the relay hub.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	Port           int           `koanf:"port"`
	StoreDir       string        `koanf:"store_dir"`
	MaxMemory      int64         `koanf:"max_memory"`
	MaxStore       int64         `koanf:"max_store"`
	RetentionAge   time.Duration `koanf:"retention_age"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
}

// SecurityConfig configures the authentication stub and HTTP hardening.
// Authentication design is out of scope; this is the minimal boundary the
// dashboard expects: a login endpoint issuing JWTs and a bearer check.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	AdminUsername   string        `koanf:"admin_username"`
	AdminPassword   string        `koanf:"admin_password"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SimulatorConfig configures the vehicle simulator producer.
type SimulatorConfig struct {
	APIBaseURL string        `koanf:"api_base_url"`
	RelayURL   string        `koanf:"relay_url"`
	Interval   time.Duration `koanf:"interval"`
	SpoolPath  string        `koanf:"spool_path"`

	// Origin is where simulated vehicles start, with some jitter applied.
	OriginLatitude  float64 `koanf:"origin_latitude"`
	OriginLongitude float64 `koanf:"origin_longitude"`
}

// Validate checks the configuration for inconsistencies that would only
// surface as confusing runtime failures later.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port %d out of range", c.Relay.Port)
	}
	if c.Relay.Port == c.Server.Port {
		return fmt.Errorf("relay.port must differ from server.port (both %d)", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay.send_buffer must be positive, got %d", c.Relay.SendBuffer)
	}
	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled without the embedded server")
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator.interval must be positive")
	}
	return nil
}
