// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package api implements the HTTP boundary: the chi router, request
// decoding and validation, and the wire formats the dashboard expects.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fleetglass/fleetglass/internal/logging"
)

// errorResponse is the error body for every failed request.
type errorResponse struct {
	Message string `json:"message"`
}

// successResponse acknowledges a write.
type successResponse struct {
	Success bool `json:"success"`
	Count   *int `json:"count,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Message: message})
}

func respondSuccess(w http.ResponseWriter, status int) {
	respondJSON(w, status, successResponse{Success: true})
}

func respondSuccessCount(w http.ResponseWriter, status, count int) {
	respondJSON(w, status, successResponse{Success: true, Count: &count})
}
