// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package client implements dashboard-side state reconciliation: a full
// snapshot fetched over HTTP, kept current by live updates from the relay,
// re-synchronized by re-snapshotting after every disconnect.
package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/models"
)

// State is the reconciler's lifecycle phase.
type State string

// Reconciler states. The machine moves Uninitialized → Snapshotting →
// Live, and falls back to Snapshotting on every transport disconnect.
const (
	StateUninitialized State = "uninitialized"
	StateSnapshotting  State = "snapshotting"
	StateLive          State = "live"
)

// SnapshotFetcher retrieves the full current-state snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) ([]models.VehicleSnapshot, error)
}

// Stream is one live connection to the relay. Recv blocks until the next
// update arrives or the connection fails.
type Stream interface {
	Recv() (models.LiveUpdate, error)
	Close() error
}

// StreamDialer opens live connections to the relay.
type StreamDialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// VehicleView is one vehicle's reconciled dashboard state. Trail holds
// the [longitude, latitude] points received during the current live
// session; it resets whenever a fresh snapshot lands.
type VehicleView struct {
	ID        string
	Name      string
	Type      models.VehicleType
	Latitude  *float64
	Longitude *float64
	Speed     *float64
	Timestamp *time.Time
	Status    models.VehicleStatus
	Trail     [][2]float64
}

// Backoff bounds the retry delay between failed snapshot fetches and
// relay dials.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff returns the retry policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}
}

// Reconciler drives the snapshot-then-live loop and owns the reconciled
// vehicle map. All read accessors are safe for concurrent use with Run.
type Reconciler struct {
	fetcher SnapshotFetcher
	dialer  StreamDialer
	backoff Backoff

	mu       sync.RWMutex
	state    State
	stale    bool
	vehicles map[string]*VehicleView

	// unknownUpdates counts live updates dropped because their vehicle
	// was absent from the last snapshot. Such updates are ignored until
	// the next snapshot: fabricating a row with unknown name and type
	// would show a half-formed vehicle on the dashboard.
	unknownUpdates uint64
}

// NewReconciler creates a reconciler in the Uninitialized state.
func NewReconciler(fetcher SnapshotFetcher, dialer StreamDialer, backoff Backoff) *Reconciler {
	if backoff.Initial <= 0 {
		backoff.Initial = DefaultBackoff().Initial
	}
	if backoff.Max <= 0 {
		backoff.Max = DefaultBackoff().Max
	}
	return &Reconciler{
		fetcher:  fetcher,
		dialer:   dialer,
		backoff:  backoff,
		state:    StateUninitialized,
		vehicles: make(map[string]*VehicleView),
	}
}

// Run drives the state machine until the context is canceled. Every
// pass re-snapshots, then consumes the live stream until it fails.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		if err := r.snapshotWithRetry(ctx); err != nil {
			return err
		}

		stream, err := r.dialWithRetry(ctx)
		if err != nil {
			return err
		}
		if stream == nil {
			// Dial kept failing long enough for the snapshot to go
			// stale; take a fresh one before retrying.
			continue
		}

		r.consume(ctx, stream)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.mu.Lock()
		r.stale = true
		r.state = StateSnapshotting
		r.mu.Unlock()
		logging.Warn().Msg("relay stream lost, re-snapshotting")
	}
}

// snapshotWithRetry fetches until success or context cancellation. The
// previous map stays visible (flagged stale) while fetches fail.
func (r *Reconciler) snapshotWithRetry(ctx context.Context) error {
	r.mu.Lock()
	r.state = StateSnapshotting
	r.mu.Unlock()

	delay := r.backoff.Initial
	for {
		snapshot, err := r.fetcher.FetchSnapshot(ctx)
		if err == nil {
			r.applySnapshot(snapshot)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logging.Err(err).Dur("retry_in", delay).Msg("snapshot fetch failed")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay, r.backoff.Max)
	}
}

// dialWithRetry opens a live stream, backing off between failures. It
// gives up (returning nil, nil) once the accumulated delay exceeds the
// offline threshold, so the caller re-snapshots before dialing again.
func (r *Reconciler) dialWithRetry(ctx context.Context) (Stream, error) {
	delay := r.backoff.Initial
	var waited time.Duration
	for {
		stream, err := r.dialer.Dial(ctx)
		if err == nil {
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logging.Err(err).Dur("retry_in", delay).Msg("relay dial failed")
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		waited += delay
		if waited >= models.OfflineAfter {
			return nil, nil
		}
		delay = nextDelay(delay, r.backoff.Max)
	}
}

// consume applies live updates until the stream fails or the context is
// canceled.
func (r *Reconciler) consume(ctx context.Context, stream Stream) {
	defer func() {
		if err := stream.Close(); err != nil && !errors.Is(err, context.Canceled) {
			logging.Debug().Err(err).Msg("stream close")
		}
	}()

	r.mu.Lock()
	r.state = StateLive
	r.stale = false
	r.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
		}
	}()

	for {
		update, err := stream.Recv()
		if err != nil {
			return
		}
		r.Apply(update)
	}
}

// applySnapshot replaces the vehicle map wholesale. Trails reset so a
// reconnect does not stack pre-disconnect history on fresh state.
func (r *Reconciler) applySnapshot(snapshot []models.VehicleSnapshot) {
	vehicles := make(map[string]*VehicleView, len(snapshot))
	for _, row := range snapshot {
		vehicles[row.ID] = &VehicleView{
			ID:        row.ID,
			Name:      row.Name,
			Type:      row.Type,
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
			Speed:     row.Speed,
			Timestamp: row.Timestamp,
			Status:    row.Status,
		}
	}

	r.mu.Lock()
	r.vehicles = vehicles
	r.stale = false
	r.mu.Unlock()
	logging.Info().Int("vehicles", len(vehicles)).Msg("snapshot applied")
}

// Apply merges one live update into the reconciled state: position and
// status are replaced, the point is appended to the session trail.
// Updates for vehicles absent from the last snapshot are dropped.
func (r *Reconciler) Apply(update models.LiveUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	view, ok := r.vehicles[update.VehicleID]
	if !ok {
		r.unknownUpdates++
		return
	}

	lat, lon, speed, ts := update.Latitude, update.Longitude, update.Speed, update.Timestamp
	view.Latitude = &lat
	view.Longitude = &lon
	view.Speed = &speed
	view.Timestamp = &ts
	view.Status = update.Status
	view.Trail = append(view.Trail, [2]float64{lon, lat})
}

// State returns the current lifecycle phase.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Stale reports whether the displayed data predates a lost connection
// and has not yet been replaced by a fresh snapshot.
func (r *Reconciler) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// UnknownUpdates returns the number of live updates dropped for vehicles
// missing from the snapshot.
func (r *Reconciler) UnknownUpdates() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknownUpdates
}

// Vehicle returns a copy of one vehicle's view.
func (r *Reconciler) Vehicle(id string) (VehicleView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.vehicles[id]
	if !ok {
		return VehicleView{}, false
	}
	return copyView(view), true
}

// Vehicles returns copies of all vehicle views ordered by id.
func (r *Reconciler) Vehicles() []VehicleView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]VehicleView, 0, len(r.vehicles))
	for _, view := range r.vehicles {
		out = append(out, copyView(view))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyView(view *VehicleView) VehicleView {
	c := *view
	c.Trail = append([][2]float64(nil), view.Trail...)
	return c
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
