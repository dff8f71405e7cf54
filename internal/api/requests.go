// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/fleetglass/fleetglass/internal/validation"
)

const maxRequestBody = 1 << 20 // 1 MB

// locationRequest is the body of POST /location. Coordinates are pointers
// so an absent field is distinguishable from a report at 0,0.
type locationRequest struct {
	VehicleID string   `json:"vehicle_id" validate:"required,max=64"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Speed     float64  `json:"speed" validate:"gte=0"`
}

// gpsLogEntry is one entry of a bulk upload. Timestamp is optional and
// defaults to the upload time.
type gpsLogEntry struct {
	VehicleID string     `json:"vehicle_id" validate:"required,max=64"`
	Latitude  *float64   `json:"latitude" validate:"required,latitude"`
	Longitude *float64   `json:"longitude" validate:"required,longitude"`
	Speed     float64    `json:"speed" validate:"gte=0"`
	Timestamp *time.Time `json:"timestamp"`
}

// gpsUploadRequest is the body of POST /gps/upload.
type gpsUploadRequest struct {
	Logs []gpsLogEntry `json:"logs" validate:"required,min=1,max=1000,dive"`
}

// vehicleRequest is the body of POST /vehicles and PUT /vehicles/{id}.
type vehicleRequest struct {
	VehicleID string `json:"vehicle_id" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required,max=128"`
	Type      string `json:"type" validate:"required,oneof=Truck Van Car"`
}

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// decodeAndValidate decodes a JSON body into dst and runs struct validation.
// The returned error message is safe to hand back to the caller.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	if err := validation.ValidateStruct(dst); err != nil {
		return err
	}
	return nil
}

// parseReportRange parses startDate and endDate query parameters as RFC3339
// and returns the half-open interval they describe.
func parseReportRange(r *http.Request) (start, end time.Time, err error) {
	startRaw := r.URL.Query().Get("startDate")
	endRaw := r.URL.Query().Get("endDate")
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("startDate and endDate are required")
	}

	start, err = time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("startDate must be RFC3339")
	}
	end, err = time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("endDate must be RFC3339")
	}
	// start == end is a valid empty interval.
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("endDate must not precede startDate")
	}
	return start, end, nil
}
