// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9003 {
		t.Errorf("server.port = %d, want 9003", cfg.Server.Port)
	}
	if cfg.Relay.Port != 3001 {
		t.Errorf("relay.port = %d, want 3001", cfg.Relay.Port)
	}
	if cfg.Simulator.Interval != 3*time.Second {
		t.Errorf("simulator.interval = %v, want 3s", cfg.Simulator.Interval)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DATABASE_PATH", "/tmp/fleet-test.db")
	t.Setenv("FLEETGLASS_RELAY__SEND_BUFFER", "128")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/fleet-test.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Relay.SendBuffer != 128 {
		t.Errorf("relay.send_buffer = %d, want 128", cfg.Relay.SendBuffer)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("server:\n  port: 7001\nrelay:\n  port: 7002\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("server.port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.Relay.Port != 7002 {
		t.Errorf("relay.port = %d, want 7002", cfg.Relay.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, true},
		{"relay equals server", func(c *Config) { c.Relay.Port = c.Server.Port }, true},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"zero send buffer", func(c *Config) { c.Relay.SendBuffer = 0 }, true},
		{"nats remote without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = ""
		}, true},
		{"zero sim interval", func(c *Config) { c.Simulator.Interval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
