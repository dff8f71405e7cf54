// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream stream holding recorded locations.
	StreamName = "FLEET_LOCATIONS"

	// TopicLocationRecorded carries one message per persisted location
	// sample, published after the database transaction commits.
	TopicLocationRecorded = "location.recorded"
)

// StreamManager handles JetStream stream lifecycle.
type StreamManager struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	maxAge time.Duration
}

// NewStreamManager creates a stream manager. maxAge bounds how long
// recorded samples stay replayable on the stream.
func NewStreamManager(nc *nats.Conn, maxAge time.Duration) (*StreamManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &StreamManager{
		js:     js,
		nc:     nc,
		maxAge: maxAge,
	}, nil
}

// EnsureStream creates or updates the location stream configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"location.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    m.maxAge,
		Storage:   jetstream.FileStorage,
		// Duplicate window matches the Nats-Msg-Id dedup header set by
		// the publisher.
		Duplicates:  2 * time.Minute,
		AllowDirect: true,
		Discard:     jetstream.DiscardOld,
	}

	_, err := m.js.Stream(ctx, StreamName)
	if err == nil {
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream: %w", err)
		}
		return stream, nil
	}

	stream, err := m.js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return stream, nil
}

// GetStreamInfo returns current stream state.
func (m *StreamManager) GetStreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := m.js.Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}
	return stream.Info(ctx)
}
