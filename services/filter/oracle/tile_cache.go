// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// DefaultMaxTiles is the default number of grids kept by a TileCache.
const DefaultMaxTiles = 256

// BiomeDataOracle is the expensive source of biome data for one world.
//
// Biomes must return a grid covering box at resolution res. Implementations
// may block; the engine assumes a call costs orders of magnitude more than a
// cell lookup in the returned grid.
type BiomeDataOracle interface {
	Biomes(ctx context.Context, box coords.Box, res coords.Resolution) (*BiomeGrid, error)
}

// Fingerprinter is implemented by oracles whose output depends on more than
// the seed, such as generator settings. Oracles that do not implement it
// share tiles with every other such oracle of the same seed.
type Fingerprinter interface {
	Fingerprint() string
}

// TileKey identifies a cached grid. Seed distinguishes worlds sharing a
// cache; Source distinguishes oracles that produce different grids for the
// same seed.
type TileKey struct {
	Source string
	Seed   int64
	Box    coords.Box
	Res    coords.Resolution
}

func (k TileKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d/%d/%d/%d", k.Source, k.Seed, k.Box.Corner.X, k.Box.Corner.Z, k.Box.Width, k.Box.Height, k.Res)
}

// TileStats contains statistics about a TileCache.
type TileStats struct {
	// Entries is the number of grids currently held.
	Entries int

	// Hits is the number of lookups served from the cache.
	Hits int64

	// Misses is the number of lookups that went to the oracle.
	Misses int64

	// Evictions is the number of grids dropped to respect MaxEntries.
	Evictions int64

	// Fetches is the number of oracle calls actually made. Lower than
	// Misses when concurrent misses for the same key were deduplicated.
	Fetches int64
}

// HitRate returns the hit rate as a percentage.
func (s TileStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// TileOptions configures a TileCache.
type TileOptions struct {
	// MaxEntries is the maximum number of grids held.
	MaxEntries int
}

// TileOption is a functional option for configuring a TileCache.
type TileOption func(*TileOptions)

// WithMaxTiles sets the maximum number of grids held.
func WithMaxTiles(n int) TileOption {
	return func(o *TileOptions) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

type tileEntry struct {
	key  TileKey
	grid *BiomeGrid
	elem *list.Element
}

// TileCache is an LRU of fetched biome grids shared between evaluations.
//
// A scan evaluates many seeds concurrently and each evaluation revisits the
// same origin boxes for its mandatory criterion and every goal; the cache
// turns the repeat visits into map lookups. Concurrent misses for the same
// key perform a single fetch.
//
// Thread Safety:
//
//	TileCache is safe for concurrent use. Returned grids are shared and must
//	not be modified.
type TileCache struct {
	mu      sync.Mutex
	entries map[TileKey]*tileEntry
	lru     *list.List
	flight  singleflight.Group
	options TileOptions

	hits      int64
	misses    int64
	evictions int64
	fetches   int64
}

// NewTileCache creates a TileCache with the given options.
func NewTileCache(opts ...TileOption) *TileCache {
	options := TileOptions{MaxEntries: DefaultMaxTiles}
	for _, opt := range opts {
		opt(&options)
	}
	return &TileCache{
		entries: make(map[TileKey]*tileEntry),
		lru:     list.New(),
		options: options,
	}
}

// GetOrFetch returns the grid for key, calling fetch on a miss.
//
// Description:
//
//	Checks the cache first. On a miss, fetch is called through singleflight
//	so concurrent evaluations of the same seed fetch the box once. Fetch
//	errors are returned to every waiter and are never cached: retrying is
//	the oracle's decision, not the cache's.
//
// Inputs:
//
//	ctx - Context for the fetch and for tracing.
//	key - Identifies the grid.
//	fetch - Produces the grid on a miss.
//
// Outputs:
//
//	*BiomeGrid - The cached or freshly fetched grid.
//	error - Non-nil if fetch failed.
func (c *TileCache) GetOrFetch(ctx context.Context, key TileKey, fetch func(context.Context) (*BiomeGrid, error)) (*BiomeGrid, error) {
	start := time.Now()
	if grid, ok := c.get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		recordTileHit(ctx)
		recordTileLatency(ctx, time.Since(start), true)
		return grid, nil
	}
	atomic.AddInt64(&c.misses, 1)
	recordTileMiss(ctx)

	v, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		if grid, ok := c.get(key); ok {
			return grid, nil
		}
		atomic.AddInt64(&c.fetches, 1)
		grid, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, grid)
		return grid, nil
	})
	recordTileLatency(ctx, time.Since(start), false)
	if err != nil {
		return nil, err
	}
	return v.(*BiomeGrid), nil
}

// Len returns the number of grids held.
func (c *TileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every grid.
func (c *TileCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[TileKey]*tileEntry)
	c.lru.Init()
}

// Stats returns a snapshot of the cache statistics.
func (c *TileCache) Stats() TileStats {
	return TileStats{
		Entries:   c.Len(),
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Fetches:   atomic.LoadInt64(&c.fetches),
	}
}

func (c *TileCache) get(key TileKey) (*BiomeGrid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	return e.grid, true
}

func (c *TileCache) put(key TileKey, grid *BiomeGrid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e.elem)
		return
	}
	for len(c.entries) >= c.options.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*tileEntry)
		c.lru.Remove(oldest)
		delete(c.entries, victim.key)
		atomic.AddInt64(&c.evictions, 1)
		recordTileEviction(context.Background())
	}
	e := &tileEntry{key: key, grid: grid}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
}
