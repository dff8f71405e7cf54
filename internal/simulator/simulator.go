// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/models"
)

// fallbackFleet seeds the simulation when the API is unreachable at
// startup, mirroring the vehicles the server creates on first run.
var fallbackFleet = []models.Vehicle{
	{ID: "TRUCK-001", Name: "Alpha Hauler", Type: models.VehicleTypeTruck},
	{ID: "TRUCK-002", Name: "Beta Hauler", Type: models.VehicleTypeTruck},
	{ID: "VAN-001", Name: "Gamma Courier", Type: models.VehicleTypeVan},
	{ID: "VAN-002", Name: "Delta Courier", Type: models.VehicleTypeVan},
	{ID: "CAR-001", Name: "Epsilon Scout", Type: models.VehicleTypeCar},
}

// Simulator drives a fleet of synthetic vehicles, pushing each tick's
// positions to the HTTP ingest endpoint and the relay independently.
type Simulator struct {
	cfg      *config.SimulatorConfig
	httpSink *HTTPSink
	relay    *RelaySink
	vehicles []*SimVehicle
	rng      *rand.Rand
	limiter  *rate.Limiter
}

// New creates a simulator. The vehicle list comes from GET /vehicles;
// if the API is down, a built-in fleet is used instead so the
// simulation can start before the server does.
func New(cfg *config.SimulatorConfig, spool *Spool) *Simulator {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	fleet := fetchFleet(cfg.APIBaseURL)
	if len(fleet) == 0 {
		logging.Warn().Msg("vehicle list unavailable, using fallback fleet")
		fleet = fallbackFleet
	}

	vehicles := make([]*SimVehicle, 0, len(fleet))
	for _, v := range fleet {
		vehicles = append(vehicles, NewSimVehicle(v, cfg.OriginLatitude, cfg.OriginLongitude, rng))
	}

	return &Simulator{
		cfg:      cfg,
		httpSink: NewHTTPSink(cfg.APIBaseURL, spool),
		relay:    NewRelaySink(cfg.RelayURL),
		vehicles: vehicles,
		rng:      rng,
		limiter:  rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// Run ticks the simulation until the context is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	logging.Info().
		Int("vehicles", len(s.vehicles)).
		Dur("interval", s.cfg.Interval).
		Msg("simulation started")
	defer s.relay.Close()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		s.tick(ctx)
	}
}

// tick advances every vehicle and pushes the new positions. The two
// sinks are independent: a failure on one never skips the other.
func (s *Simulator) tick(ctx context.Context) {
	delivered := false

	for _, v := range s.vehicles {
		v.Step(s.rng, s.cfg.Interval)
		if v.Status == models.StatusOffline {
			continue
		}

		if err := s.httpSink.Send(ctx, v); err != nil {
			logging.Debug().Err(err).Str("vehicle_id", v.ID).Msg("ingest send failed")
		} else {
			delivered = true
		}

		update := models.LiveUpdate{
			VehicleID: v.ID,
			Latitude:  v.Latitude,
			Longitude: v.Longitude,
			Speed:     v.Speed,
			Status:    v.Status,
			Timestamp: time.Now().UTC(),
		}
		if err := s.relay.Send(ctx, update); err != nil {
			logging.Debug().Err(err).Str("vehicle_id", v.ID).Msg("relay send failed")
		}
	}

	// The endpoint just accepted a live sample, so drain any backlog
	// accumulated during the outage.
	if delivered && s.httpSink.HasBacklog() {
		if err := s.httpSink.Replay(ctx); err != nil {
			logging.Warn().Err(err).Msg("spool replay failed")
		}
	}
}

// fetchFleet loads the vehicle master list from the API.
func fetchFleet(baseURL string) []models.Vehicle {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/vehicles")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var fleet []models.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&fleet); err != nil {
		logging.Warn().Err(err).Msg("decode vehicle list")
		return nil
	}
	return fleet
}

// String implements fmt.Stringer for supervised use.
func (s *Simulator) String() string {
	return fmt.Sprintf("simulator(%d vehicles)", len(s.vehicles))
}
