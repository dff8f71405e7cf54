// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetglass/fleetglass/internal/auth"
	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/database"
	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/metrics"
	"github.com/fleetglass/fleetglass/internal/models"
)

// Broadcaster fans a live update out to connected dashboard clients.
type Broadcaster interface {
	Publish(update models.LiveUpdate)
}

// EventPublisher emits location.recorded events for the relay bridge.
// Implementations must be non-blocking best-effort; ingest never waits on
// event delivery.
type EventPublisher interface {
	PublishLocation(ctx context.Context, update models.LiveUpdate) error
}

// Server holds handler dependencies.
type Server struct {
	db        *database.DB
	hub       Broadcaster
	publisher EventPublisher
	jwt       *auth.JWTManager
	creds     *auth.CredentialChecker
	cfg       *config.Config
	started   time.Time
}

// NewServer creates the handler set. hub and publisher may be nil; ingest
// then skips the corresponding fan-out path.
func NewServer(db *database.DB, hub Broadcaster, publisher EventPublisher, jwt *auth.JWTManager, creds *auth.CredentialChecker, cfg *config.Config) *Server {
	return &Server{
		db:        db,
		hub:       hub,
		publisher: publisher,
		jwt:       jwt,
		creds:     creds,
		cfg:       cfg,
		started:   time.Now(),
	}
}

// ProcessLocation persists one sample and returns the enriched live update.
// The HTTP ingest handler uses it directly; it also fits the hub's inbound
// processor signature for deployments whose producers report over the
// websocket only and never call POST /location.
func (s *Server) ProcessLocation(ctx context.Context, vehicleID string, lat, lon, speed float64) (models.LiveUpdate, error) {
	ts, err := s.db.RecordLocation(ctx, vehicleID, lat, lon, speed)
	if err != nil {
		return models.LiveUpdate{}, err
	}

	update := models.LiveUpdate{
		VehicleID: vehicleID,
		Latitude:  lat,
		Longitude: lon,
		Speed:     speed,
		Status:    models.ComputeStatus(ts, speed, time.Now()),
		Timestamp: ts,
	}

	if s.publisher != nil {
		if err := s.publisher.PublishLocation(ctx, update); err != nil {
			logging.Warn().Err(err).Str("vehicle_id", vehicleID).Msg("failed to publish location event")
		}
	}
	return update, nil
}

// HandleIngestLocation handles POST /location.
func (s *Server) HandleIngestLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		metrics.RecordIngest("http", "rejected")
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	update, err := s.ProcessLocation(r.Context(), req.VehicleID, *req.Latitude, *req.Longitude, req.Speed)
	if err != nil {
		if errors.Is(err, database.ErrUnknownVehicle) {
			metrics.RecordIngest("http", "rejected")
			respondMessage(w, http.StatusBadRequest, "unknown vehicle_id")
			return
		}
		metrics.RecordIngest("http", "error")
		logging.Error().Err(err).Str("vehicle_id", req.VehicleID).Msg("failed to record location")
		respondMessage(w, http.StatusInternalServerError, "failed to record location")
		return
	}

	// With the event pipeline enabled the bridge delivers the recorded
	// event into the hub; publishing here as well would hand every viewer
	// the same sample twice.
	if s.hub != nil && s.publisher == nil {
		s.hub.Publish(update)
	}

	metrics.RecordIngest("http", "ok")
	respondSuccess(w, http.StatusCreated)
}

// HandleListLocations handles GET /location: the reconciliation snapshot.
func (s *Server) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.db.ListCurrentPositions(r.Context(), time.Now())
	if err != nil {
		logging.Error().Err(err).Msg("failed to list current positions")
		respondMessage(w, http.StatusInternalServerError, "failed to fetch locations")
		return
	}
	respondJSON(w, http.StatusOK, snapshots)
}

// HandleHistoricalReport handles GET /reports/historical.
func (s *Server) HandleHistoricalReport(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseReportRange(r)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	vehicleID := r.URL.Query().Get("vehicleId")

	entries, err := s.db.ListHistory(r.Context(), vehicleID, start, end)
	if err != nil {
		logging.Error().Err(err).Msg("failed to query history")
		respondMessage(w, http.StatusInternalServerError, "failed to fetch report")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// HandleGPSUpload handles POST /gps/upload: bulk history backfill.
func (s *Server) HandleGPSUpload(w http.ResponseWriter, r *http.Request) {
	var req gpsUploadRequest
	if err := decodeAndValidate(r, &req); err != nil {
		metrics.RecordIngest("batch", "rejected")
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	entries := make([]models.HistoryEntry, len(req.Logs))
	for i, l := range req.Logs {
		ts := now
		if l.Timestamp != nil {
			ts = l.Timestamp.UTC()
		}
		entries[i] = models.HistoryEntry{
			VehicleID: l.VehicleID,
			Latitude:  *l.Latitude,
			Longitude: *l.Longitude,
			Speed:     l.Speed,
			Timestamp: ts,
		}
	}

	count, err := s.db.InsertHistoryBatch(r.Context(), entries)
	if err != nil {
		if errors.Is(err, database.ErrUnknownVehicle) {
			metrics.RecordIngest("batch", "rejected")
			respondMessage(w, http.StatusBadRequest, "unknown vehicle_id in batch")
			return
		}
		metrics.RecordIngest("batch", "error")
		logging.Error().Err(err).Msg("failed to insert history batch")
		respondMessage(w, http.StatusInternalServerError, "failed to store batch")
		return
	}

	metrics.RecordIngest("batch", "ok")
	respondSuccessCount(w, http.StatusCreated, count)
}

// HandleCreateVehicle handles POST /vehicles.
func (s *Server) HandleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.VehicleID == "" {
		respondMessage(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}

	v := models.Vehicle{ID: req.VehicleID, Name: req.Name, Type: models.VehicleType(req.Type)}
	if err := s.db.CreateVehicle(r.Context(), v); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondMessage(w, http.StatusConflict, "vehicle already exists")
			return
		}
		logging.Error().Err(err).Str("vehicle_id", v.ID).Msg("failed to create vehicle")
		respondMessage(w, http.StatusInternalServerError, "failed to create vehicle")
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// HandleListVehicles handles GET /vehicles.
func (s *Server) HandleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.db.ListVehicles(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("failed to list vehicles")
		respondMessage(w, http.StatusInternalServerError, "failed to fetch vehicles")
		return
	}
	respondJSON(w, http.StatusOK, vehicles)
}

// HandleGetVehicle handles GET /vehicles/{id}.
func (s *Server) HandleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := s.db.GetVehicle(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, "vehicle not found")
			return
		}
		logging.Error().Err(err).Str("vehicle_id", id).Msg("failed to get vehicle")
		respondMessage(w, http.StatusInternalServerError, "failed to fetch vehicle")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// HandleUpdateVehicle handles PUT /vehicles/{id}.
func (s *Server) HandleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req vehicleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	v := models.Vehicle{ID: id, Name: req.Name, Type: models.VehicleType(req.Type)}
	if err := s.db.UpdateVehicle(r.Context(), v); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, "vehicle not found")
			return
		}
		logging.Error().Err(err).Str("vehicle_id", id).Msg("failed to update vehicle")
		respondMessage(w, http.StatusInternalServerError, "failed to update vehicle")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// HandleDeleteVehicle handles DELETE /vehicles/{id}. The delete cascades to
// the vehicle's current position and history.
func (s *Server) HandleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.db.DeleteVehicle(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, "vehicle not found")
			return
		}
		logging.Error().Err(err).Str("vehicle_id", id).Msg("failed to delete vehicle")
		respondMessage(w, http.StatusInternalServerError, "failed to delete vehicle")
		return
	}
	respondSuccess(w, http.StatusOK)
}

// HandleVehicleLogs handles GET /vehicles/logs?vehicle_id=.
func (s *Server) HandleVehicleLogs(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicle_id")
	if vehicleID == "" {
		respondMessage(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := s.db.ListVehicleLogs(r.Context(), vehicleID, limit)
	if err != nil {
		logging.Error().Err(err).Str("vehicle_id", vehicleID).Msg("failed to query vehicle logs")
		respondMessage(w, http.StatusInternalServerError, "failed to fetch logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// HandleLogin handles POST /auth/login.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if s.jwt == nil || s.creds == nil {
		respondMessage(w, http.StatusServiceUnavailable, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.creds.Check(req.Username, req.Password); err != nil {
		respondMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.jwt.GenerateToken(req.Username, "admin")
	if err != nil {
		logging.Error().Err(err).Msg("failed to generate token")
		respondMessage(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": time.Now().Add(s.cfg.Security.SessionTimeout).UTC().Format(time.RFC3339),
	})
}

// HandleHealthLive handles GET /health/live.
func (s *Server) HandleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// HandleHealthReady handles GET /health/ready; readiness requires a live
// database connection.
func (s *Server) HandleHealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
