// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package models defines the core data types shared across the store, the
// relay transport, and the HTTP API.
package models

import "time"

// VehicleType classifies a vehicle in the fleet master data.
type VehicleType string

// Valid vehicle types.
const (
	VehicleTypeTruck VehicleType = "Truck"
	VehicleTypeVan   VehicleType = "Van"
	VehicleTypeCar   VehicleType = "Car"
)

// Valid reports whether t is one of the known vehicle types.
func (t VehicleType) Valid() bool {
	switch t {
	case VehicleTypeTruck, VehicleTypeVan, VehicleTypeCar:
		return true
	}
	return false
}

// VehicleStatus is derived from the freshness and speed of the current
// position at query time. It is never stored: "now" is relative to the read,
// not the write.
type VehicleStatus string

// Derived vehicle statuses.
const (
	StatusMoving  VehicleStatus = "Moving"
	StatusIdle    VehicleStatus = "Idle"
	StatusOffline VehicleStatus = "Offline"
)

// Status derivation thresholds.
const (
	// OfflineAfter is how stale a position may be before the vehicle is
	// considered offline.
	OfflineAfter = 5 * time.Minute

	// MovingSpeedThreshold is the speed (km/h) above which a fresh position
	// counts as moving rather than idle.
	MovingSpeedThreshold = 2.0
)

// ComputeStatus derives the vehicle status from the last update time and
// speed, relative to now.
func ComputeStatus(updatedAt time.Time, speed float64, now time.Time) VehicleStatus {
	if now.Sub(updatedAt) > OfflineAfter {
		return StatusOffline
	}
	if speed > MovingSpeedThreshold {
		return StatusMoving
	}
	return StatusIdle
}

// Vehicle is the immutable master record for one fleet vehicle.
// The ID is externally assigned.
type Vehicle struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type VehicleType `json:"type"`
}

// CurrentPosition is the single live position row per vehicle.
// Every ingested update overwrites it (upsert semantics).
type CurrentPosition struct {
	VehicleID string    `json:"vehicle_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one append-only row of the historical position log.
// ID is an identity column used to break ties between equal timestamps.
type HistoryEntry struct {
	ID        int64     `json:"-"`
	VehicleID string    `json:"vehicle_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// VehicleSnapshot is one row of the full current-state snapshot served to
// dashboard clients: master data joined with the current position and the
// status computed at query time. Position fields are nil for vehicles that
// have never reported.
type VehicleSnapshot struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      VehicleType   `json:"type"`
	Latitude  *float64      `json:"latitude"`
	Longitude *float64      `json:"longitude"`
	Speed     *float64      `json:"speed"`
	Timestamp *time.Time    `json:"timestamp"`
	Status    VehicleStatus `json:"status"`
}

// LiveUpdate is the broadcast unit relayed between producers and viewers.
// It exists only on the wire and in client memory; the relay never stores it.
type LiveUpdate struct {
	VehicleID string        `json:"vehicle_id"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Speed     float64       `json:"speed"`
	Status    VehicleStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}
