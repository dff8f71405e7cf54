// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/models"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		MaxMemory: "256MB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func mustCreateVehicle(t *testing.T, db *DB, id, name string, vt models.VehicleType) {
	t.Helper()
	if err := db.CreateVehicle(context.Background(), models.Vehicle{ID: id, Name: name, Type: vt}); err != nil {
		t.Fatalf("CreateVehicle(%s): %v", id, err)
	}
}

func TestSchemaIdempotent(t *testing.T) {
	db := newTestDB(t)
	// Re-running schema creation against an initialized database must not fail.
	if err := db.createSchema(); err != nil {
		t.Fatalf("createSchema second run: %v", err)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
