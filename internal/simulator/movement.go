// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package simulator generates synthetic telemetry for a fleet of
// vehicles and pushes it to both server sinks: the durable HTTP ingest
// endpoint and the live relay websocket. Either sink may be down
// without stopping the loop.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/fleetglass/fleetglass/internal/models"
)

// metersPerDegreeLat is the approximate north-south distance of one
// degree of latitude.
const metersPerDegreeLat = 111320.0

// SimVehicle is one vehicle's simulation state.
type SimVehicle struct {
	models.Vehicle
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   float64
	Status    models.VehicleStatus
}

// NewSimVehicle seeds a vehicle near the given origin with randomized
// position, speed and heading.
func NewSimVehicle(v models.Vehicle, originLat, originLon float64, rng *rand.Rand) *SimVehicle {
	return &SimVehicle{
		Vehicle:   v,
		Latitude:  originLat + (rng.Float64()-0.5)*0.2,
		Longitude: originLon + (rng.Float64()-0.5)*0.2,
		Speed:     rng.Float64() * 60,
		Heading:   rng.Float64() * 360,
		Status:    models.StatusMoving,
	}
}

// Step advances the vehicle by one tick of the given duration.
//
// The model is a random walk: a 10% chance of flipping between Moving
// and Idle, speed drifting within [0, 100] km/h, heading drifting up to
// ±10 degrees, and displacement derived from speed over the tick
// interval. Offline vehicles do not move.
func (v *SimVehicle) Step(rng *rand.Rand, interval time.Duration) {
	if v.Status == models.StatusOffline {
		return
	}

	newStatus := v.Status
	if rng.Float64() < 0.1 {
		if v.Status == models.StatusMoving {
			newStatus = models.StatusIdle
		} else {
			newStatus = models.StatusMoving
		}
	}

	if newStatus == models.StatusIdle {
		v.Speed = 0
	} else {
		v.Speed = clamp(v.Speed+(rng.Float64()-0.5)*10, 0, 100)

		if v.Speed > 0 {
			v.Heading = math.Mod(v.Heading+(rng.Float64()-0.5)*20+360, 360)

			angleRad := v.Heading * math.Pi / 180
			// km/h to meters covered during this tick.
			distance := v.Speed * 1000 / 3600 * interval.Seconds()
			latRad := v.Latitude * math.Pi / 180

			v.Latitude += distance * math.Cos(angleRad) / metersPerDegreeLat
			v.Longitude += distance * math.Sin(angleRad) / (metersPerDegreeLat * math.Cos(latRad))
		}
	}

	v.Status = newStatus
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
