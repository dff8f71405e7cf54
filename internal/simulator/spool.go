// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package simulator

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/fleetglass/fleetglass/internal/metrics"
	"github.com/fleetglass/fleetglass/internal/models"
)

const spoolKeyPrefix = "spool:"

// Spool buffers samples that could not be delivered to the ingest
// endpoint. Entries are keyed by a monotonic sequence so replay happens
// in the order the samples were produced.
type Spool struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenSpool opens (or creates) the spool at the given path.
func OpenSpool(path string) (*Spool, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}

	seq, err := db.GetSequence([]byte("spool_seq"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open spool sequence: %w", err)
	}

	return &Spool{db: db, seq: seq}, nil
}

// Append stores one undelivered sample.
func (s *Spool) Append(entry models.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal spool entry: %w", err)
	}

	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next spool sequence: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(spoolKey(n), data)
	})
	if err != nil {
		return fmt.Errorf("append spool entry: %w", err)
	}

	metrics.SimulatorSpoolDepth.Inc()
	return nil
}

// Peek returns up to max spooled entries in append order without
// removing them.
func (s *Spool) Peek(max int) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(spoolKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(entries) < max; it.Next() {
			var entry models.HistoryEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("read spool entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Remove drops the first n entries after a successful replay.
func (s *Spool) Remove(n int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(spoolKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		removed := 0
		for it.Rewind(); it.Valid() && removed < n; it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove spool entries: %w", err)
	}

	metrics.SimulatorSpoolDepth.Sub(float64(n))
	return nil
}

// Len counts the spooled entries.
func (s *Spool) Len() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(spoolKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close releases the sequence and closes the store.
func (s *Spool) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("release spool sequence: %w", err)
	}
	return s.db.Close()
}

// spoolKey builds a big-endian sequence key so badger's lexicographic
// iteration order matches append order.
func spoolKey(n uint64) []byte {
	key := make([]byte, len(spoolKeyPrefix)+8)
	copy(key, spoolKeyPrefix)
	binary.BigEndian.PutUint64(key[len(spoolKeyPrefix):], n)
	return key
}
