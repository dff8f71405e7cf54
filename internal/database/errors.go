// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package database

import (
	"database/sql"
	"errors"
	"io"
	"strings"

	"github.com/fleetglass/fleetglass/internal/logging"
)

// Sentinel errors returned by the store. The HTTP layer maps these onto
// status codes; everything else is treated as an internal failure.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates an insert collided with an existing primary key.
	ErrDuplicate = errors.New("already exists")

	// ErrUnknownVehicle indicates a location referenced a vehicle that has
	// not been registered.
	ErrUnknownVehicle = errors.New("unknown vehicle")
)

// isDuplicateKey checks whether err is a DuckDB primary key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "PRIMARY KEY or UNIQUE constraint")
}

// isConnectionError checks if an error indicates database connection loss.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "database is closed")
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollbackQuietly rolls back a transaction, ignoring the error returned when
// the transaction was already committed.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Failed to roll back transaction")
	}
}
