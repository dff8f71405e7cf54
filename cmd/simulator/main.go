// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package main runs the FleetGlass vehicle simulator: a standalone
// producer that moves a synthetic fleet and pushes each position to the
// durable ingest endpoint and the live relay. Samples the ingest
// endpoint refuses to take (outage, open circuit breaker) spool to disk
// and are replayed as bulk history uploads on recovery.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/simulator"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	var spool *simulator.Spool
	if cfg.Simulator.SpoolPath != "" {
		spool, err = simulator.OpenSpool(cfg.Simulator.SpoolPath)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open spool")
		}
		defer func() {
			if err := spool.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing spool")
			}
		}()
	} else {
		logging.Warn().Msg("spool path not set: samples lost during ingest outages")
	}

	sim := simulator.New(&cfg.Simulator, spool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("stopping simulator")
		cancel()
	}()

	if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("simulator failed")
	}
	logging.Info().Msg("simulator stopped")
}
