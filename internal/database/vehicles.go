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

// CreateVehicle registers a new vehicle. Returns ErrDuplicate when the
// vehicle id is already taken.
func (db *DB) CreateVehicle(ctx context.Context, v models.Vehicle) error {
	start := time.Now()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO vehicles (vehicle_id, name, type)
		VALUES (?, ?, ?)`,
		v.ID, v.Name, string(v.Type))
	if err != nil {
		metrics.RecordDBQuery("insert", "vehicles", time.Since(start), err)
		if isDuplicateKey(err) {
			return fmt.Errorf("vehicle %s: %w", v.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}

	metrics.RecordDBQuery("insert", "vehicles", time.Since(start), nil)
	return nil
}

// GetVehicle returns one vehicle by id.
func (db *DB) GetVehicle(ctx context.Context, vehicleID string) (models.Vehicle, error) {
	var v models.Vehicle
	err := db.conn.QueryRowContext(ctx, `
		SELECT vehicle_id, name, type FROM vehicles WHERE vehicle_id = ?`,
		vehicleID).Scan(&v.ID, &v.Name, &v.Type)
	if err == sql.ErrNoRows {
		return models.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	if err != nil {
		return models.Vehicle{}, fmt.Errorf("query vehicle: %w", err)
	}
	return v, nil
}

// ListVehicles returns all registered vehicles ordered by id.
func (db *DB) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT vehicle_id, name, type FROM vehicles ORDER BY vehicle_id`)
	if err != nil {
		metrics.RecordDBQuery("select", "vehicles", time.Since(start), err)
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer closeQuietly(rows)

	vehicles := make([]models.Vehicle, 0, 32)
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.Type); err != nil {
			return nil, fmt.Errorf("scan vehicle row: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicle rows: %w", err)
	}

	metrics.RecordDBQuery("select", "vehicles", time.Since(start), nil)
	return vehicles, nil
}

// UpdateVehicle changes a vehicle's name and type. Returns ErrNotFound when
// the vehicle does not exist.
func (db *DB) UpdateVehicle(ctx context.Context, v models.Vehicle) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE vehicles SET name = ?, type = ? WHERE vehicle_id = ?`,
		v.Name, string(v.Type), v.ID)
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update vehicle rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("vehicle %s: %w", v.ID, ErrNotFound)
	}
	return nil
}

// DeleteVehicle removes a vehicle along with its current position and all of
// its history in one transaction. Returns ErrNotFound when the vehicle does
// not exist.
func (db *DB) DeleteVehicle(ctx context.Context, vehicleID string) error {
	mu := db.acquireVehicleLock(vehicleID)
	defer mu.Unlock()

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	res, err := tx.ExecContext(ctx, `DELETE FROM vehicles WHERE vehicle_id = ?`, vehicleID)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vehicle rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_locations WHERE vehicle_id = ?`, vehicleID); err != nil {
		return fmt.Errorf("delete current position: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gps_logs WHERE vehicle_id = ?`, vehicleID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	// The per-vehicle lock entry stays in the map. Removing it while a
	// concurrent writer holds the mutex would let the id briefly have two
	// independent locks.
	metrics.RecordDBQuery("delete", "vehicles", time.Since(start), nil)
	return nil
}
