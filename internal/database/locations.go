// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetglass/fleetglass/internal/metrics"
	"github.com/fleetglass/fleetglass/internal/models"
)

// RecordLocation persists one location sample: the vehicle's current position
// is upserted and a history row is appended, both carrying the same timestamp,
// in a single transaction. Returns the recorded timestamp.
//
// Writes for the same vehicle are serialized so a late-arriving concurrent
// sample cannot interleave its upsert and append with another sample's.
func (db *DB) RecordLocation(ctx context.Context, vehicleID string, lat, lon, speed float64) (time.Time, error) {
	mu := db.acquireVehicleLock(vehicleID)
	defer mu.Unlock()

	start := time.Now()
	now := start.UTC().Truncate(time.Microsecond)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	exists, err := vehicleExistsTx(ctx, tx, vehicleID)
	if err != nil {
		return time.Time{}, err
	}
	if !exists {
		return time.Time{}, fmt.Errorf("vehicle %s: %w", vehicleID, ErrUnknownVehicle)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vehicle_locations (vehicle_id, latitude, longitude, speed, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (vehicle_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			speed = excluded.speed,
			updated_at = excluded.updated_at`,
		vehicleID, lat, lon, speed, now)
	if err != nil {
		metrics.RecordDBQuery("upsert", "vehicle_locations", time.Since(start), err)
		return time.Time{}, fmt.Errorf("upsert current position: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gps_logs (vehicle_id, latitude, longitude, speed, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		vehicleID, lat, lon, speed, now)
	if err != nil {
		metrics.RecordDBQuery("insert", "gps_logs", time.Since(start), err)
		return time.Time{}, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBQuery("commit", "vehicle_locations", time.Since(start), err)
		return time.Time{}, fmt.Errorf("commit location: %w", err)
	}

	metrics.RecordDBQuery("record_location", "vehicle_locations", time.Since(start), nil)
	return now, nil
}

// InsertHistoryBatch appends a batch of history rows in one transaction,
// preserving input order. Current positions are not touched; bulk uploads are
// backfill, not live state. Returns the number of rows inserted.
func (db *DB) InsertHistoryBatch(ctx context.Context, entries []models.HistoryEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gps_logs (vehicle_id, latitude, longitude, speed, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer closeQuietly(stmt)

	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.VehicleID] {
			exists, err := vehicleExistsTx(ctx, tx, e.VehicleID)
			if err != nil {
				return 0, err
			}
			if !exists {
				return 0, fmt.Errorf("vehicle %s: %w", e.VehicleID, ErrUnknownVehicle)
			}
			seen[e.VehicleID] = true
		}

		ts := e.Timestamp.UTC()
		if _, err := stmt.ExecContext(ctx, e.VehicleID, e.Latitude, e.Longitude, e.Speed, ts); err != nil {
			metrics.RecordDBQuery("batch_insert", "gps_logs", time.Since(start), err)
			return 0, fmt.Errorf("insert history row for %s: %w", e.VehicleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	metrics.RecordDBQuery("batch_insert", "gps_logs", time.Since(start), nil)
	metrics.IngestBatchSize.Observe(float64(len(entries)))
	return len(entries), nil
}

// ListCurrentPositions returns the fleet snapshot: every registered vehicle
// with its current position, or null position fields for vehicles that have
// never reported. Status is derived from the position relative to now.
func (db *DB) ListCurrentPositions(ctx context.Context, now time.Time) ([]models.VehicleSnapshot, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT v.vehicle_id, v.name, v.type,
		       l.latitude, l.longitude, l.speed, l.updated_at
		FROM vehicles v
		LEFT JOIN vehicle_locations l ON l.vehicle_id = v.vehicle_id
		ORDER BY v.vehicle_id`)
	if err != nil {
		metrics.RecordDBQuery("select", "vehicle_locations", time.Since(start), err)
		return nil, fmt.Errorf("query current positions: %w", err)
	}
	defer closeQuietly(rows)

	snapshots := make([]models.VehicleSnapshot, 0, 32)
	for rows.Next() {
		var (
			snap      models.VehicleSnapshot
			lat, lon  sql.NullFloat64
			speed     sql.NullFloat64
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&snap.ID, &snap.Name, &snap.Type, &lat, &lon, &speed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		if updatedAt.Valid {
			snap.Latitude = &lat.Float64
			snap.Longitude = &lon.Float64
			snap.Speed = &speed.Float64
			ts := updatedAt.Time.UTC()
			snap.Timestamp = &ts
			snap.Status = models.ComputeStatus(ts, speed.Float64, now)
		} else {
			snap.Status = models.StatusOffline
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	metrics.RecordDBQuery("select", "vehicle_locations", time.Since(start), nil)
	return snapshots, nil
}

// ListHistory returns history rows with timestamp in the half-open range
// [from, to), ordered by vehicle then time, with the insertion id breaking
// timestamp ties. An empty vehicleID selects the whole fleet.
func (db *DB) ListHistory(ctx context.Context, vehicleID string, from, to time.Time) ([]models.HistoryEntry, error) {
	start := time.Now()

	query := `
		SELECT id, vehicle_id, latitude, longitude, speed, timestamp
		FROM gps_logs
		WHERE timestamp >= ? AND timestamp < ?`
	args := []interface{}{from.UTC(), to.UTC()}
	if vehicleID != "" {
		query += ` AND vehicle_id = ?`
		args = append(args, vehicleID)
	}
	query += ` ORDER BY vehicle_id, timestamp, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordDBQuery("select", "gps_logs", time.Since(start), err)
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer closeQuietly(rows)

	entries, err := scanHistoryRows(rows)
	if err != nil {
		return nil, err
	}

	metrics.RecordDBQuery("select", "gps_logs", time.Since(start), nil)
	return entries, nil
}

// ListVehicleLogs returns the most recent history rows for one vehicle,
// newest first.
func (db *DB) ListVehicleLogs(ctx context.Context, vehicleID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, vehicle_id, latitude, longitude, speed, timestamp
		FROM gps_logs
		WHERE vehicle_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		vehicleID, limit)
	if err != nil {
		metrics.RecordDBQuery("select", "gps_logs", time.Since(start), err)
		return nil, fmt.Errorf("query vehicle logs: %w", err)
	}
	defer closeQuietly(rows)

	entries, err := scanHistoryRows(rows)
	if err != nil {
		return nil, err
	}

	metrics.RecordDBQuery("select", "gps_logs", time.Since(start), nil)
	return entries, nil
}

func scanHistoryRows(rows *sql.Rows) ([]models.HistoryEntry, error) {
	entries := make([]models.HistoryEntry, 0, 64)
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.VehicleID, &e.Latitude, &e.Longitude, &e.Speed, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func vehicleExistsTx(ctx context.Context, tx *sql.Tx, vehicleID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM vehicles WHERE vehicle_id = ?`, vehicleID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check vehicle %s: %w", vehicleID, err)
	}
	return true, nil
}
