// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package events

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/models"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
	os.Exit(m.Run())
}

type captureBroadcaster struct {
	updates []models.LiveUpdate
}

func (c *captureBroadcaster) Publish(update models.LiveUpdate) {
	c.updates = append(c.updates, update)
}

func TestBridgeHandleMessage(t *testing.T) {
	sink := &captureBroadcaster{}
	b := &Bridge{hub: sink, logger: newWatermillLogger()}

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	update := models.LiveUpdate{
		VehicleID: "truck-001",
		Latitude:  40.7128,
		Longitude: -74.0060,
		Speed:     42.5,
		Status:    models.StatusMoving,
		Timestamp: ts,
	}
	payload, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	b.handleMessage(msg)

	if len(sink.updates) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(sink.updates))
	}
	got := sink.updates[0]
	if got.VehicleID != update.VehicleID || got.Speed != update.Speed {
		t.Errorf("broadcast update = %+v, want %+v", got, update)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.Status != models.StatusMoving {
		t.Errorf("status = %q, want %q", got.Status, models.StatusMoving)
	}

	select {
	case <-msg.Acked():
	default:
		t.Error("message was not acked")
	}
}

func TestBridgeHandleMessageBadPayload(t *testing.T) {
	sink := &captureBroadcaster{}
	b := &Bridge{hub: sink, logger: newWatermillLogger()}

	msg := message.NewMessage(uuid.New().String(), []byte("not json"))
	b.handleMessage(msg)

	if len(sink.updates) != 0 {
		t.Fatalf("expected no broadcasts, got %d", len(sink.updates))
	}

	// Bad payloads are acked so JetStream does not redeliver them.
	select {
	case <-msg.Acked():
	default:
		t.Error("bad payload message was not acked")
	}
}
