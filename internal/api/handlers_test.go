// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/fleetglass/fleetglass/internal/auth"
	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/database"
	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/models"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
	os.Exit(m.Run())
}

// fakeBroadcaster records published live updates.
type fakeBroadcaster struct {
	updates []models.LiveUpdate
}

func (f *fakeBroadcaster) Publish(update models.LiveUpdate) {
	f.updates = append(f.updates, update)
}

// fakePublisher records emitted location events.
type fakePublisher struct {
	updates []models.LiveUpdate
}

func (f *fakePublisher) PublishLocation(_ context.Context, update models.LiveUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

type testEnv struct {
	server *Server
	router http.Handler
	hub    *fakeBroadcaster
	db     *database.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Database.Path = filepath.Join(t.TempDir(), "api-test.db")
	cfg.Security.JWTSecret = strings.Repeat("k", 32)
	cfg.Security.AdminPassword = "test-pass"

	db, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatal(err)
	}
	creds, err := auth.NewCredentialChecker(&cfg.Security)
	if err != nil {
		t.Fatal(err)
	}

	hub := &fakeBroadcaster{}
	server := NewServer(db, hub, nil, jwt, creds, cfg)
	return &testEnv{
		server: server,
		router: server.Routes(nil),
		hub:    hub,
		db:     db,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createVehicle(t *testing.T, id, name, vtype string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/vehicles", map[string]string{
		"vehicle_id": id, "name": name, "type": vtype,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create vehicle %s: status %d body %s", id, rec.Code, rec.Body.String())
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestIngestLocation(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	rec := env.do(t, http.MethodPost, "/location", map[string]interface{}{
		"vehicle_id": "TRK-001", "latitude": 40.7, "longitude": -74.0, "speed": 25.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]interface{}](t, rec)
	if body["success"] != true {
		t.Errorf("body = %v, want success true", body)
	}

	// The update reaches the relay broadcaster with derived status.
	if len(env.hub.updates) != 1 {
		t.Fatalf("broadcaster got %d updates, want 1", len(env.hub.updates))
	}
	update := env.hub.updates[0]
	if update.VehicleID != "TRK-001" || update.Status != models.StatusMoving {
		t.Errorf("broadcast update = %+v", update)
	}
}

func TestIngestLocationWritesOneHistoryRow(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	rec := env.do(t, http.MethodPost, "/location", map[string]interface{}{
		"vehicle_id": "TRK-001", "latitude": 40.7, "longitude": -74.0, "speed": 25.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	logs, err := env.db.ListVehicleLogs(context.Background(), "TRK-001", 10)
	if err != nil {
		t.Fatalf("ListVehicleLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("one sample produced %d history rows, want 1", len(logs))
	}
	if len(env.hub.updates) != 1 {
		t.Errorf("one sample reached the broadcaster %d times, want 1", len(env.hub.updates))
	}
}

func TestIngestLocationEventPipelineSkipsDirectFanOut(t *testing.T) {
	env := newTestEnv(t)
	pub := &fakePublisher{}
	env.server.publisher = pub
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	rec := env.do(t, http.MethodPost, "/location", map[string]interface{}{
		"vehicle_id": "TRK-001", "latitude": 40.7, "longitude": -74.0, "speed": 25.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The bridge replays recorded events into the hub, so the handler must
	// not also publish directly.
	if len(pub.updates) != 1 {
		t.Fatalf("publisher got %d events, want 1", len(pub.updates))
	}
	if len(env.hub.updates) != 0 {
		t.Errorf("hub got %d direct publishes alongside the event pipeline, want 0", len(env.hub.updates))
	}
}

func TestIngestLocationMissingCoordinates(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	rec := env.do(t, http.MethodPost, "/location", map[string]interface{}{
		"vehicle_id": "TRK-001",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}

	// The absent coordinates must not be stored as 0,0.
	logs, err := env.db.ListVehicleLogs(context.Background(), "TRK-001", 10)
	if err != nil {
		t.Fatalf("ListVehicleLogs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("got %d history rows after rejected sample, want 0", len(logs))
	}
}

func TestIngestLocationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"unknown vehicle", map[string]interface{}{"vehicle_id": "GHOST", "latitude": 1.0, "longitude": 1.0, "speed": 1.0}, http.StatusBadRequest},
		{"missing vehicle id", map[string]interface{}{"latitude": 1.0, "longitude": 1.0}, http.StatusBadRequest},
		{"latitude out of range", map[string]interface{}{"vehicle_id": "TRK-001", "latitude": 91.0, "longitude": 0.0}, http.StatusBadRequest},
		{"negative speed", map[string]interface{}{"vehicle_id": "TRK-001", "latitude": 0.0, "longitude": 0.0, "speed": -5.0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/location", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			var errBody errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil || errBody.Message == "" {
				t.Errorf("error body %q must carry a message", rec.Body.String())
			}
		})
	}

	if len(env.hub.updates) != 0 {
		t.Errorf("rejected samples were broadcast: %+v", env.hub.updates)
	}
}

func TestListLocationsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")
	env.createVehicle(t, "VAN-002", "Van 2", "Van")

	rec := env.do(t, http.MethodPost, "/location", map[string]interface{}{
		"vehicle_id": "TRK-001", "latitude": 40.7, "longitude": -74.0, "speed": 1.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/location", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	snaps := decodeBody[[]map[string]interface{}](t, rec)
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshot rows, want 2", len(snaps))
	}

	// Response is a bare array ordered by id; TRK-001 sorts before VAN-002.
	if snaps[0]["id"] != "TRK-001" || snaps[1]["id"] != "VAN-002" {
		t.Errorf("order = %v, %v", snaps[0]["id"], snaps[1]["id"])
	}
	if snaps[0]["status"] != "Idle" {
		t.Errorf("TRK-001 status = %v, want Idle (speed 1)", snaps[0]["status"])
	}
	// Never-reported vehicle appears with null position fields and Offline.
	if snaps[1]["latitude"] != nil || snaps[1]["timestamp"] != nil {
		t.Errorf("VAN-002 position fields = %v, want nulls", snaps[1])
	}
	if snaps[1]["status"] != "Offline" {
		t.Errorf("VAN-002 status = %v, want Offline", snaps[1]["status"])
	}
}

func TestHistoricalReport(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	logs := make([]map[string]interface{}, 3)
	for i := range logs {
		logs[i] = map[string]interface{}{
			"vehicle_id": "TRK-001",
			"latitude":   float64(i),
			"longitude":  0.0,
			"speed":      10.0,
			"timestamp":  base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		}
	}
	rec := env.do(t, http.MethodPost, "/gps/upload", map[string]interface{}{"logs": logs})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body %s", rec.Code, rec.Body.String())
	}
	upload := decodeBody[map[string]interface{}](t, rec)
	if upload["count"] != float64(3) {
		t.Errorf("upload count = %v, want 3", upload["count"])
	}

	// Half-open range keeps the first two rows only.
	path := fmt.Sprintf("/reports/historical?startDate=%s&endDate=%s",
		base.Format(time.RFC3339), base.Add(2*time.Hour).Format(time.RFC3339))
	rec = env.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d body %s", rec.Code, rec.Body.String())
	}
	entries := decodeBody[[]map[string]interface{}](t, rec)
	if len(entries) != 2 {
		t.Errorf("got %d report rows, want 2", len(entries))
	}
}

func TestHistoricalReportBadDates(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing both", "/reports/historical"},
		{"missing end", "/reports/historical?startDate=2026-05-01T00:00:00Z"},
		{"malformed start", "/reports/historical?startDate=yesterday&endDate=2026-05-01T00:00:00Z"},
		{"end before start", "/reports/historical?startDate=2026-05-02T00:00:00Z&endDate=2026-05-01T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGPSUploadDefaultsTimestamp(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	before := time.Now().UTC().Add(-time.Minute)
	rec := env.do(t, http.MethodPost, "/gps/upload", map[string]interface{}{
		"logs": []map[string]interface{}{
			{"vehicle_id": "TRK-001", "latitude": 1.0, "longitude": 1.0, "speed": 1.0},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	logs, err := env.db.ListVehicleLogs(context.Background(), "TRK-001", 10)
	if err != nil {
		t.Fatalf("ListVehicleLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d rows, want 1", len(logs))
	}
	if logs[0].Timestamp.Before(before) || logs[0].Timestamp.After(time.Now().UTC().Add(time.Minute)) {
		t.Errorf("defaulted timestamp = %v, want approximately now", logs[0].Timestamp)
	}
}

func TestGPSUploadAtomic(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	ts := time.Now().UTC().Format(time.RFC3339)
	rec := env.do(t, http.MethodPost, "/gps/upload", map[string]interface{}{
		"logs": []map[string]interface{}{
			{"vehicle_id": "TRK-001", "latitude": 1.0, "longitude": 1.0, "speed": 1.0, "timestamp": ts},
			{"vehicle_id": "GHOST", "latitude": 2.0, "longitude": 2.0, "speed": 2.0, "timestamp": ts},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/vehicles/logs?vehicle_id=TRK-001", nil)
	logs := decodeBody[[]map[string]interface{}](t, rec)
	if len(logs) != 0 {
		t.Errorf("got %d rows after rejected batch, want 0 (atomicity)", len(logs))
	}
}

func TestVehicleCRUD(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "TRK-001", "Truck 1", "Truck")

	// Duplicate registration conflicts.
	rec := env.do(t, http.MethodPost, "/vehicles", map[string]string{
		"vehicle_id": "TRK-001", "name": "Other", "type": "Van",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}

	// Invalid type rejected.
	rec = env.do(t, http.MethodPost, "/vehicles", map[string]string{
		"vehicle_id": "X-1", "name": "X", "type": "Boat",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid type status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/vehicles/TRK-001", map[string]string{
		"name": "Renamed", "type": "Car",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/vehicles/TRK-001", nil)
	v := decodeBody[map[string]interface{}](t, rec)
	if v["name"] != "Renamed" || v["type"] != "Car" {
		t.Errorf("vehicle after update = %v", v)
	}

	rec = env.do(t, http.MethodDelete, "/vehicles/TRK-001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/vehicles/TRK-001", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "admin", "password": "test-pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]interface{}](t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in login response")
	}

	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "admin", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", rec.Code)
	}
}

func TestProtectedMutations(t *testing.T) {
	env := newTestEnv(t)
	authMW := auth.NewMiddleware(env.server.jwt)
	router := env.server.Routes(authMW)

	body, _ := json.Marshal(map[string]string{"vehicle_id": "TRK-900", "name": "T", "type": "Truck"})

	req := httptest.NewRequest(http.MethodPost, "/vehicles", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create status = %d, want 401", rec.Code)
	}

	token, err := env.server.jwt.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodPost, "/vehicles", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("authenticated create status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
}
