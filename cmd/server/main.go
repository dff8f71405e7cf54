// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package main is the entry point for the FleetGlass server.
//
// FleetGlass tracks a vehicle fleet: durable location ingest into DuckDB,
// a websocket relay fanning live updates between producers and dashboard
// viewers, and historical trip reporting.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML, environment)
//  2. Database: DuckDB location store with schema bootstrap
//  3. Relay hub: websocket fan-out on its own port
//  4. Authentication: JWT login stub, enabled when JWT_SECRET is set
//  5. Events (optional): embedded NATS JetStream bridging HTTP ingest
//     into the relay
//  6. HTTP server: REST API, health and metrics endpoints
//
// All long-running components run under a suture supervisor tree and are
// restarted with backoff on failure. SIGINT/SIGTERM trigger a graceful
// shutdown: listeners stop accepting, in-flight requests drain, relay
// connections close, the database checkpoints.
//
// # Example usage
//
// Development, everything on defaults:
//
//	./fleetglass-server
//
// With authentication and the event pipeline:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_PASSWORD=secure-password
//	export NATS_ENABLED=true
//	./fleetglass-server -config config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/fleetglass/fleetglass/internal/api"
	"github.com/fleetglass/fleetglass/internal/auth"
	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/database"
	"github.com/fleetglass/fleetglass/internal/events"
	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/models"
	"github.com/fleetglass/fleetglass/internal/supervisor"
	ws "github.com/fleetglass/fleetglass/internal/websocket"
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

	logging.Info().
		Str("api_addr", cfg.Server.Addr()).
		Str("relay_addr", cfg.Relay.Addr()).
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("starting FleetGlass")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	if err := seedFleet(context.Background(), db); err != nil {
		logging.Warn().Err(err).Msg("fleet seeding failed")
	}

	// The hub is a pure relay. Producers persist through POST /location and
	// additionally push the same sample over the websocket for low-latency
	// fan-out; running the inbound processor here would store every sample a
	// second time.
	hub := ws.NewHub(nil, cfg.Relay.SendBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher api.EventPublisher
	var bridge *events.Bridge
	if cfg.NATS.Enabled {
		pub, br, cleanup, err := initEvents(ctx, cfg, hub)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize event pipeline")
		}
		defer cleanup()
		publisher = pub
		bridge = br
	}

	var jwtManager *auth.JWTManager
	var creds *auth.CredentialChecker
	var authMW *auth.Middleware
	if cfg.Security.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize JWT manager")
		}
		creds, err = auth.NewCredentialChecker(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize credential checker")
		}
		authMW = auth.NewMiddleware(jwtManager)
		logging.Info().Msg("JWT authentication enabled")
	} else {
		logging.Warn().Msg("JWT_SECRET not set: vehicle mutations are unauthenticated")
	}

	server := api.NewServer(db, hub, publisher, jwtManager, creds, cfg)

	apiServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Routes(authMW),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	relayMux := http.NewServeMux()
	relayMux.HandleFunc("/ws", ws.Handler(hub))
	relayServer := &http.Server{
		Addr:              cfg.Relay.Addr(),
		Handler:           relayMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddRelayService(supervisor.NewRunnerService("relay-hub", hub))
	tree.AddRelayService(supervisor.NewHTTPService("relay-listener", relayServer, 10*time.Second))
	tree.AddAPIService(supervisor.NewHTTPService("api-server", apiServer, 10*time.Second))
	if bridge != nil {
		tree.AddEventsService(supervisor.NewRunFuncService("events-bridge", bridge.Run))
	}

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree failed")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}

	logging.Info().Msg("shutdown complete")
}

// initEvents wires the optional JetStream pipeline: embedded server (or
// external URL), stream provisioning, post-commit publisher, and the
// bridge that replays recorded locations into the hub.
func initEvents(ctx context.Context, cfg *config.Config, hub *ws.Hub) (*events.Publisher, *events.Bridge, func(), error) {
	url := cfg.NATS.URL
	var embedded *events.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		var err error
		embedded, err = events.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			return nil, nil, nil, err
		}
		url = embedded.ClientURL()
		logging.Info().Str("url", url).Msg("embedded NATS server ready")
	}

	nc, err := natsgo.Connect(url, natsgo.RetryOnFailedConnect(true), natsgo.MaxReconnects(-1))
	if err != nil {
		shutdownEmbedded(embedded)
		return nil, nil, nil, err
	}

	streams, err := events.NewStreamManager(nc, cfg.NATS.RetentionAge)
	if err != nil {
		nc.Close()
		shutdownEmbedded(embedded)
		return nil, nil, nil, err
	}
	if _, err := streams.EnsureStream(ctx); err != nil {
		nc.Close()
		shutdownEmbedded(embedded)
		return nil, nil, nil, err
	}

	publisher, err := events.NewPublisher(&cfg.NATS, url)
	if err != nil {
		nc.Close()
		shutdownEmbedded(embedded)
		return nil, nil, nil, err
	}

	bridge, err := events.NewBridge(&cfg.NATS, url, hub)
	if err != nil {
		publisher.Close()
		nc.Close()
		shutdownEmbedded(embedded)
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := bridge.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing bridge")
		}
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing publisher")
		}
		nc.Close()
		shutdownEmbedded(embedded)
	}
	return publisher, bridge, cleanup, nil
}

func shutdownEmbedded(embedded *events.EmbeddedServer) {
	if embedded == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := embedded.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("error shutting down embedded NATS")
	}
}

// seedFleet creates a starter fleet on an empty database so the
// dashboard and simulator have vehicles to work with immediately.
func seedFleet(ctx context.Context, db *database.DB) error {
	existing, err := db.ListVehicles(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	fleet := []models.Vehicle{
		{ID: "TRUCK-001", Name: "Alpha Hauler", Type: models.VehicleTypeTruck},
		{ID: "TRUCK-002", Name: "Beta Hauler", Type: models.VehicleTypeTruck},
		{ID: "VAN-001", Name: "Gamma Courier", Type: models.VehicleTypeVan},
		{ID: "VAN-002", Name: "Delta Courier", Type: models.VehicleTypeVan},
		{ID: "CAR-001", Name: "Epsilon Scout", Type: models.VehicleTypeCar},
	}
	for _, v := range fleet {
		if err := db.CreateVehicle(ctx, v); err != nil {
			return err
		}
	}
	logging.Info().Int("count", len(fleet)).Msg("seeded starter fleet")
	return nil
}
