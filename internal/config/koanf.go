// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "FLEETGLASS_"

// envNameMap maps well-known bare environment variables onto koanf keys.
// Anything not listed here can still be set with the FLEETGLASS_ prefix,
// e.g. FLEETGLASS_SERVER__PORT=9003.
var envNameMap = map[string]string{
	"HTTP_PORT":            "server.port",
	"HTTP_HOST":            "server.host",
	"HTTP_TIMEOUT":         "server.timeout",
	"RELAY_PORT":           "relay.port",
	"RELAY_HOST":           "relay.host",
	"RELAY_SEND_BUFFER":    "relay.send_buffer",
	"DATABASE_PATH":        "database.path",
	"DATABASE_URL":         "database.path",
	"DUCKDB_MAX_MEMORY":    "database.max_memory",
	"DUCKDB_THREADS":       "database.threads",
	"NATS_ENABLED":         "nats.enabled",
	"NATS_URL":             "nats.url",
	"NATS_EMBEDDED":        "nats.embedded_server",
	"NATS_PORT":            "nats.port",
	"NATS_STORE_DIR":       "nats.store_dir",
	"JWT_SECRET":           "security.jwt_secret",
	"SESSION_TIMEOUT":      "security.session_timeout",
	"ADMIN_USERNAME":       "security.admin_username",
	"ADMIN_PASSWORD":       "security.admin_password",
	"RATE_LIMIT_REQS":      "security.rate_limit_reqs",
	"RATE_LIMIT_WINDOW":    "security.rate_limit_window",
	"CORS_ORIGINS":         "security.cors_origins",
	"LOG_LEVEL":            "logging.level",
	"LOG_FORMAT":           "logging.format",
	"LOG_CALLER":           "logging.caller",
	"SIM_API_BASE_URL":     "simulator.api_base_url",
	"SIM_RELAY_URL":        "simulator.relay_url",
	"SIM_INTERVAL":         "simulator.interval",
	"SIM_SPOOL_PATH":       "simulator.spool_path",
	"SIM_ORIGIN_LATITUDE":  "simulator.origin_latitude",
	"SIM_ORIGIN_LONGITUDE": "simulator.origin_longitude",
}

// defaultConfig returns the built-in defaults. Every field the rest of the
// program reads has a working default so a bare binary starts up.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:    9003,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			Port:       3001,
			Host:       "0.0.0.0",
			SendBuffer: 64,
		},
		Database: DatabaseConfig{
			Path:      "data/fleetglass.db",
			MaxMemory: "512MB",
		},
		NATS: NATSConfig{
			Enabled:        false,
			EmbeddedServer: true,
			Port:           4222,
			StoreDir:       "data/nats",
			MaxMemory:      256 << 20,
			MaxStore:       1 << 30,
			RetentionAge:   24 * time.Hour,
			DurableName:    "fleetglass-relay-bridge",
			QueueGroup:     "fleetglass-bridge",
		},
		Security: SecurityConfig{
			SessionTimeout:  24 * time.Hour,
			AdminUsername:   "admin",
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Simulator: SimulatorConfig{
			APIBaseURL:      "http://localhost:9003",
			RelayURL:        "ws://localhost:3001/ws",
			Interval:        3 * time.Second,
			SpoolPath:       "data/sim-spool",
			OriginLatitude:  40.7128,
			OriginLongitude: -74.0060,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path (skipped when path is empty or missing), and environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envTransform maps environment variable names onto koanf keys. Unknown
// variables without the FLEETGLASS_ prefix are ignored so the process
// environment does not leak into the config tree.
func envTransform(s string) string {
	if key, ok := envNameMap[s]; ok {
		return key
	}
	if strings.HasPrefix(s, envPrefix) {
		trimmed := strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(strings.ReplaceAll(trimmed, "__", "."))
	}
	return ""
}
