// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package validation

import (
	"strings"
	"testing"
)

type locationRequest struct {
	VehicleID string  `validate:"required"`
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
	Speed     float64 `validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     locationRequest
		wantErr bool
		wantMsg string
	}{
		{
			name: "valid",
			req:  locationRequest{VehicleID: "TRK-001", Latitude: 40.7, Longitude: -74.0, Speed: 12.5},
		},
		{
			name:    "missing vehicle id",
			req:     locationRequest{Latitude: 40.7, Longitude: -74.0},
			wantErr: true,
			wantMsg: "VehicleID is required",
		},
		{
			name:    "latitude out of range",
			req:     locationRequest{VehicleID: "TRK-001", Latitude: 95, Longitude: 0},
			wantErr: true,
			wantMsg: "valid latitude",
		},
		{
			name:    "negative speed",
			req:     locationRequest{VehicleID: "TRK-001", Latitude: 0, Longitude: 0, Speed: -1},
			wantErr: true,
			wantMsg: "greater than or equal to 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStruct() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateStructMultipleErrors(t *testing.T) {
	err := ValidateStruct(&locationRequest{Latitude: 100, Longitude: 200})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Fields()) != 3 {
		t.Errorf("got %d field errors, want 3", len(err.Fields()))
	}
}
