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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/scan"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
	"github.com/AleutianAI/SeedFilter/services/filter/world/worldtest"
)

func newStore(t *testing.T) *MatchStore {
	t.Helper()
	s := NewMatchStore(openMemory(t))
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func result(seed int64, goals ...string) *filter.Result {
	return &filter.Result{
		Seed:   seed,
		Origin: coords.New(16, -32),
		Goals:  goals,
		Items: map[string][]criterion.Item{
			filter.NoGoal: {{Kind: "village", Pos: coords.New(100, 200)}},
		},
		Stats: filter.Stats{Repositions: 3},
	}
}

func TestSeedKeyOrdering(t *testing.T) {
	seeds := []int64{-1 << 63, -5, -1, 0, 1, 7, 1<<63 - 1}
	for i := 1; i < len(seeds); i++ {
		assert.Less(t, encodeSeed(seeds[i-1]), encodeSeed(seeds[i]))
	}
	for _, s := range seeds {
		got, err := decodeSeed(encodeSeed(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestMatchStore_PutGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "run-a", result(42, "near_temple")))

	rec, err := s.Get(ctx, "run-a", 42)
	require.NoError(t, err)
	assert.Equal(t, "run-a", rec.RunID)
	assert.Equal(t, int64(42), rec.Seed)
	assert.Equal(t, coords.New(16, -32), rec.Origin)
	assert.Equal(t, []string{"near_temple"}, rec.Goals)
	assert.Equal(t, []criterion.Item{{Kind: "village", Pos: coords.New(100, 200)}}, rec.Items[filter.NoGoal])
	assert.Equal(t, 3, rec.Repositions)
	assert.Equal(t, 2025, rec.StoredAt.Year())

	_, err = s.Get(ctx, "run-a", 43)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "run-b", 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchStore_InvalidRunID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "", result(1)), ErrInvalidRunID)
	assert.ErrorIs(t, s.Put(ctx, "a/b", result(1)), ErrInvalidRunID)
	_, err := s.List(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRunID)
	assert.ErrorIs(t, s.SaveRun(ctx, scan.SeedRange{}, scan.Stats{}), ErrInvalidRunID)
	assert.Error(t, s.Put(ctx, "run", nil))
}

func TestMatchStore_ListInSeedOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, seed := range []int64{9, -3, 0, 250, -1000} {
		require.NoError(t, s.Put(ctx, "run-a", result(seed)))
	}
	require.NoError(t, s.Put(ctx, "run-ab", result(5)))

	recs, err := s.List(ctx, "run-a")
	require.NoError(t, err)
	got := make([]int64, len(recs))
	for i, r := range recs {
		got[i] = r.Seed
	}
	assert.Equal(t, []int64{-1000, -3, 0, 9, 250}, got)

	seeds, err := s.Seeds(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, got, seeds)

	recs, err = s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMatchStore_Runs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "run-b", result(1)))
	require.NoError(t, s.Put(ctx, "run-b", result(2)))
	require.NoError(t, s.Put(ctx, "run-a", result(3)))
	require.NoError(t, s.SaveRun(ctx, scan.SeedRange{From: 0, To: 10}, scan.Stats{RunID: "run-a", Scanned: 10, Matched: 1}))
	require.NoError(t, s.SaveRun(ctx, scan.SeedRange{From: 0, To: 5}, scan.Stats{RunID: "run-c", Scanned: 5}))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, "run-a", runs[0].RunID)
	assert.Equal(t, 1, runs[0].Matches)
	require.True(t, runs[0].Finished())
	assert.Equal(t, int64(10), runs[0].Stats.Scanned)
	assert.Equal(t, scan.SeedRange{From: 0, To: 10}, *runs[0].Range)

	assert.Equal(t, "run-b", runs[1].RunID)
	assert.Equal(t, 2, runs[1].Matches)
	assert.False(t, runs[1].Finished())

	assert.Equal(t, "run-c", runs[2].RunID)
	assert.Equal(t, 0, runs[2].Matches)
	assert.True(t, runs[2].Finished())
}

func TestMatchStore_DeleteRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "run-a", result(1)))
	require.NoError(t, s.Put(ctx, "run-b", result(1)))
	require.NoError(t, s.SaveRun(ctx, scan.SeedRange{From: 0, To: 2}, scan.Stats{RunID: "run-a"}))

	require.NoError(t, s.DeleteRun(ctx, "run-a"))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-b", runs[0].RunID)
}

func TestMatchStore_AsScanSink(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tree := criterion.NewTree()
	f, err := filter.NewBuilder(tree).
		Match(tree.Structure(world.StructureVillage, 0)).
		Build()
	require.NoError(t, err)

	sources := func(seed int64) (world.Source, error) {
		src := worldtest.NewSource(seed).WithStructures(world.StructureVillage)
		if seed%2 == 0 {
			src.WithStructures(world.StructureVillage, coords.New(1, 1))
		}
		return src, nil
	}
	scanner, err := scan.NewScanner(f, sources, scan.WithWorkers(3), scan.WithSink(s), scan.WithProgressInterval(0))
	require.NoError(t, err)

	r := scan.SeedRange{From: -4, To: 6}
	stats, err := scanner.Run(ctx, r)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, r, stats))

	seeds, err := s.Seeds(ctx, stats.RunID)
	require.NoError(t, err)
	assert.Equal(t, []int64{-4, -2, 0, 2, 4}, seeds)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Matches)
	assert.Equal(t, int64(5), runs[0].Stats.Matched)
}
