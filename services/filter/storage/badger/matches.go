// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/SeedFilter/pkg/validation"
	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/scan"
)

var (
	// ErrNotFound is returned when a match or run does not exist.
	ErrNotFound = errors.New("badger: not found")

	// ErrInvalidRunID is returned for a run id validation.ValidateRunID
	// rejects.
	ErrInvalidRunID = errors.New("badger: invalid run id")
)

const (
	matchPrefix = "run/"
	runPrefix   = "meta/"
)

// Record is the stored form of a match.
type Record struct {
	RunID       string                      `json:"run_id"`
	Seed        int64                       `json:"seed"`
	Origin      coords.Coordinates          `json:"origin"`
	Goals       []string                    `json:"goals"`
	Items       map[string][]criterion.Item `json:"items"`
	Repositions int                         `json:"repositions"`
	StoredAt    time.Time                   `json:"stored_at"`
}

// RunSummary describes a scan run found in the store.
type RunSummary struct {
	RunID string `json:"run_id"`

	// Matches is the number of stored matches.
	Matches int `json:"matches"`

	// Range and Stats are set once the run was saved with SaveRun.
	Range      *scan.SeedRange `json:"range,omitempty"`
	Stats      *scan.Stats     `json:"stats,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// Finished reports whether SaveRun recorded the end of the run.
func (r RunSummary) Finished() bool {
	return r.Stats != nil
}

type runMeta struct {
	Range      scan.SeedRange `json:"range"`
	Stats      scan.Stats     `json:"stats"`
	FinishedAt time.Time      `json:"finished_at"`
}

// MatchStore persists scan matches. It implements scan.Sink.
//
// Keys are "run/<runID>/<seed>" with the seed written as 16 hex digits
// after flipping its sign bit, so a prefix scan returns a run's matches in
// ascending seed order, negative seeds included.
//
// Thread Safety: Safe for concurrent use.
type MatchStore struct {
	db  *DB
	now func() time.Time
}

var _ scan.Sink = (*MatchStore)(nil)

// NewMatchStore creates a store on db. The caller keeps ownership of db.
func NewMatchStore(db *DB) *MatchStore {
	return &MatchStore{db: db, now: time.Now}
}

func validRunID(runID string) error {
	if err := validation.ValidateRunID(runID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRunID, err)
	}
	return nil
}

func encodeSeed(seed int64) string {
	return fmt.Sprintf("%016x", uint64(seed)^(1<<63))
}

func decodeSeed(s string) (int64, error) {
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return int64(u ^ (1 << 63)), nil
}

func runMatchPrefix(runID string) []byte {
	return []byte(matchPrefix + runID + "/")
}

func matchKey(runID string, seed int64) []byte {
	return append(runMatchPrefix(runID), encodeSeed(seed)...)
}

func metaKey(runID string) []byte {
	return []byte(runPrefix + runID)
}

// Put stores res under runID, replacing an earlier record for the seed.
func (s *MatchStore) Put(ctx context.Context, runID string, res *filter.Result) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	if res == nil {
		return errors.New("badger: nil result")
	}

	rec := Record{
		RunID:       runID,
		Seed:        res.Seed,
		Origin:      res.Origin,
		Goals:       res.Goals,
		Items:       res.Items,
		Repositions: res.Stats.Repositions,
		StoredAt:    s.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode match %d: %w", res.Seed, err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(matchKey(runID, res.Seed), data)
	})
}

// Get returns the match of seed in runID, or ErrNotFound.
func (s *MatchStore) Get(ctx context.Context, runID string, seed int64) (Record, error) {
	if err := validRunID(runID); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(matchKey(runID, seed))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: run %s seed %d", ErrNotFound, runID, seed)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// List returns every match of runID in ascending seed order.
func (s *MatchStore) List(ctx context.Context, runID string) ([]Record, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	prefix := runMatchPrefix(runID)
	records := make([]Record, 0)

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Seeds returns the matched seeds of runID in ascending order without
// decoding the records.
func (s *MatchStore) Seeds(ctx context.Context, runID string) ([]int64, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	prefix := runMatchPrefix(runID)
	seeds := make([]int64, 0)

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			seed, err := seedFromKey(it.Item().Key())
			if err != nil {
				return err
			}
			seeds = append(seeds, seed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seeds, nil
}

// SaveRun records how a run ended. Runs that were never saved still
// appear in Runs, without Range or Stats.
func (s *MatchStore) SaveRun(ctx context.Context, r scan.SeedRange, stats scan.Stats) error {
	if err := validRunID(stats.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(runMeta{Range: r, Stats: stats, FinishedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode run %s: %w", stats.RunID, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(metaKey(stats.RunID), data)
	})
}

// Runs lists every run with stored matches or a saved summary, sorted by
// run id.
func (s *MatchStore) Runs(ctx context.Context) ([]RunSummary, error) {
	byID := make(map[string]*RunSummary)
	get := func(id string) *RunSummary {
		r, ok := byID[id]
		if !ok {
			r = &RunSummary{RunID: id}
			byID[id] = r
		}
		return r
	}

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(matchPrefix)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := bytes.TrimPrefix(it.Item().Key(), prefix)
			id, _, ok := bytes.Cut(rest, []byte("/"))
			if !ok {
				continue
			}
			get(string(id)).Matches++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(runPrefix)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			var meta runMeta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return fmt.Errorf("decode run %s: %w", id, err)
			}
			r := get(id)
			r.Range = &meta.Range
			r.Stats = &meta.Stats
			r.FinishedAt = meta.FinishedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

// DeleteRun removes a run's matches and summary.
func (s *MatchStore) DeleteRun(ctx context.Context, runID string) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropPrefix(runMatchPrefix(runID)); err != nil {
		return fmt.Errorf("drop matches of %s: %w", runID, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(metaKey(runID))
	})
}

// seedFromKey extracts the seed from a match key.
func seedFromKey(key []byte) (int64, error) {
	i := bytes.LastIndexByte(key, '/')
	if i < 0 {
		return 0, fmt.Errorf("malformed key %q", key)
	}
	return decodeSeed(string(key[i+1:]))
}
