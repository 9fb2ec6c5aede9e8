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
	"context"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// QueryableOracle is a biome view positioned on one window at a time.
//
// Callers move the window with MoveCacheTo and then query freely inside it.
// Queries outside the window fail with ErrOutsideCachedRegion.
type QueryableOracle interface {
	// MoveCacheTo positions the window on box, fetching its biomes once.
	MoveCacheTo(ctx context.Context, box coords.Box) error

	// BiomeAt returns the biome of the cell containing c.
	BiomeAt(c coords.Coordinates) (Biome, error)

	// Grid returns the grid of the current window.
	Grid() (*BiomeGrid, error)

	// Region returns the current window and whether one is set.
	Region() (coords.Box, bool)
}

// CachedOption configures a CachedBiomeDataOracle.
type CachedOption func(*CachedBiomeDataOracle)

// WithTileCache shares fetched grids through tiles.
func WithTileCache(tiles *TileCache) CachedOption {
	return func(o *CachedBiomeDataOracle) {
		o.tiles = tiles
	}
}

// WithResolution sets the resolution grids are fetched at.
// Invalid resolutions are ignored.
func WithResolution(res coords.Resolution) CachedOption {
	return func(o *CachedBiomeDataOracle) {
		if res.Valid() {
			o.res = res
		}
	}
}

// CachedBiomeDataOracle adapts a BiomeDataOracle to QueryableOracle.
//
// Description:
//
//	Holds the grid of a single window. Moving to a box equal to the current
//	window is a no-op; any other move bulk-fetches the whole box once, from
//	the shared TileCache when one is configured.
//
// Thread Safety:
//
//	Not safe for concurrent use. One instance belongs to one evaluation.
type CachedBiomeDataOracle struct {
	seed        int64
	source      BiomeDataOracle
	fingerprint string
	tiles       *TileCache
	res         coords.Resolution

	grid        *BiomeGrid
	region      coords.Box
	positioned  bool
	repositions int
}

// NewCachedBiomeDataOracle wraps source for the world identified by seed.
func NewCachedBiomeDataOracle(seed int64, source BiomeDataOracle, opts ...CachedOption) (*CachedBiomeDataOracle, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	o := &CachedBiomeDataOracle{
		seed:   seed,
		source: source,
		res:    coords.ResolutionQuarter,
	}
	if fp, ok := source.(Fingerprinter); ok {
		o.fingerprint = fp.Fingerprint()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// MoveCacheTo implements QueryableOracle.
//
// On a fetch failure the previous window is kept and the error is returned
// wrapped in *FetchError.
func (o *CachedBiomeDataOracle) MoveCacheTo(ctx context.Context, box coords.Box) error {
	if o.positioned && o.region == box {
		return nil
	}

	ctx, span := startFetchSpan(ctx, o.seed, box)
	defer span.End()

	fetch := func(ctx context.Context) (*BiomeGrid, error) {
		return o.source.Biomes(ctx, box, o.res)
	}

	var (
		grid *BiomeGrid
		err  error
	)
	if o.tiles != nil {
		grid, err = o.tiles.GetOrFetch(ctx, TileKey{Source: o.fingerprint, Seed: o.seed, Box: box, Res: o.res}, fetch)
	} else {
		grid, err = fetch(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return &FetchError{Box: box, Err: err}
	}

	o.grid = grid
	o.region = box
	o.positioned = true
	o.repositions++
	recordReposition(ctx)
	return nil
}

// BiomeAt implements QueryableOracle.
func (o *CachedBiomeDataOracle) BiomeAt(c coords.Coordinates) (Biome, error) {
	if !o.positioned {
		return 0, ErrNoCachedRegion
	}
	if !o.region.Contains(c) {
		return 0, ErrOutsideCachedRegion
	}
	b, ok := o.grid.At(c)
	if !ok {
		return 0, ErrOutsideCachedRegion
	}
	return b, nil
}

// Grid implements QueryableOracle.
func (o *CachedBiomeDataOracle) Grid() (*BiomeGrid, error) {
	if !o.positioned {
		return nil, ErrNoCachedRegion
	}
	return o.grid, nil
}

// Region implements QueryableOracle.
func (o *CachedBiomeDataOracle) Region() (coords.Box, bool) {
	return o.region, o.positioned
}

// Repositions returns the number of successful window moves. Moving back to
// an earlier window counts again, so this bounds the distinct windows from
// above.
func (o *CachedBiomeDataOracle) Repositions() int {
	return o.repositions
}

// Seed returns the seed of the wrapped world.
func (o *CachedBiomeDataOracle) Seed() int64 {
	return o.seed
}
