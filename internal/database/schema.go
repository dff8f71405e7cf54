// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package database

import (
	"context"
	"fmt"
	"time"
)

// createSchema creates tables, the history id sequence, and indexes.
// All statements are idempotent so startup against an existing file is safe.
func (db *DB) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
			vehicle_id VARCHAR PRIMARY KEY,
			name       VARCHAR NOT NULL,
			type       VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,

		// One row per vehicle, overwritten on every ingest.
		`CREATE TABLE IF NOT EXISTS vehicle_locations (
			vehicle_id VARCHAR PRIMARY KEY,
			latitude   DOUBLE NOT NULL,
			longitude  DOUBLE NOT NULL,
			speed      DOUBLE NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		// The sequence gives history rows a monotonic id so rows sharing a
		// timestamp still have a total order.
		`CREATE SEQUENCE IF NOT EXISTS gps_logs_id_seq`,

		`CREATE TABLE IF NOT EXISTS gps_logs (
			id         BIGINT PRIMARY KEY DEFAULT nextval('gps_logs_id_seq'),
			vehicle_id VARCHAR NOT NULL,
			latitude   DOUBLE NOT NULL,
			longitude  DOUBLE NOT NULL,
			speed      DOUBLE NOT NULL,
			timestamp  TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_gps_logs_vehicle_time
			ON gps_logs (vehicle_id, timestamp)`,

		`CREATE INDEX IF NOT EXISTS idx_gps_logs_time
			ON gps_logs (timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
