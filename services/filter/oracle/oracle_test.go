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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// countingOracle fills every cell with a biome derived from its grid x index.
type countingOracle struct {
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (o *countingOracle) Biomes(ctx context.Context, box coords.Box, res coords.Resolution) (*BiomeGrid, error) {
	o.calls.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if o.err != nil {
		return nil, o.err
	}
	g := NewBiomeGrid(box, res)
	x0, z0, x1, z1 := g.GridBounds()
	for gz := z0; gz < z1; gz++ {
		for gx := x0; gx < x1; gx++ {
			g.Set(gx, gz, Biome(((gx%int64(biomeCount))+int64(biomeCount))%int64(biomeCount)))
		}
	}
	return g, nil
}

func TestParseBiome(t *testing.T) {
	b, err := ParseBiome("desert")
	require.NoError(t, err)
	assert.Equal(t, BiomeDesert, b)
	assert.Equal(t, "desert", b.String())

	_, err = ParseBiome("lava_lake")
	assert.ErrorIs(t, err, ErrUnknownBiome)
}

func TestBiomeSet(t *testing.T) {
	s := NewBiomeSet(BiomeForest, BiomeJungle)
	assert.True(t, s.Has(BiomeForest))
	assert.True(t, s.Has(BiomeJungle))
	assert.False(t, s.Has(BiomeOcean))
	assert.Equal(t, []Biome{BiomeForest, BiomeJungle}, s.Biomes())
	assert.False(t, BiomeOcean.IsLand())
	assert.True(t, BiomePlains.IsLand())
}

func TestBiomeGrid_EachClipsToSubBox(t *testing.T) {
	box := coords.NewBox(coords.New(-16, -16), 32, 32, coords.ResolutionQuarter)
	g := NewBiomeGrid(box, coords.ResolutionQuarter)
	g.Set(-4, -4, BiomeDesert)
	g.Set(0, 0, BiomeJungle)

	b, ok := g.At(coords.New(-13, -15))
	require.True(t, ok)
	assert.Equal(t, BiomeDesert, b)

	_, ok = g.At(coords.New(16, 0))
	assert.False(t, ok)

	var visited int
	var found []coords.Coordinates
	g.Each(coords.NewBox(coords.New(0, 0), 8, 8, coords.ResolutionQuarter), func(c coords.Coordinates, b Biome) bool {
		visited++
		if b == BiomeJungle {
			found = append(found, c)
		}
		return true
	})
	assert.Equal(t, 4, visited)
	assert.Equal(t, []coords.Coordinates{coords.New(0, 0)}, found)
}

func TestCachedBiomeDataOracle(t *testing.T) {
	ctx := context.Background()
	frag := coords.FragmentAt(0, 0)

	t.Run("rejects nil source", func(t *testing.T) {
		_, err := NewCachedBiomeDataOracle(1, nil)
		assert.ErrorIs(t, err, ErrNilSource)
	})

	t.Run("queries before positioning fail", func(t *testing.T) {
		o, err := NewCachedBiomeDataOracle(1, &countingOracle{})
		require.NoError(t, err)
		_, err = o.BiomeAt(coords.Origin())
		assert.ErrorIs(t, err, ErrNoCachedRegion)
		_, err = o.Grid()
		assert.ErrorIs(t, err, ErrNoCachedRegion)
		_, ok := o.Region()
		assert.False(t, ok)
	})

	t.Run("moving to an equal box fetches once", func(t *testing.T) {
		src := &countingOracle{}
		o, err := NewCachedBiomeDataOracle(1, src)
		require.NoError(t, err)

		require.NoError(t, o.MoveCacheTo(ctx, frag))
		require.NoError(t, o.MoveCacheTo(ctx, frag))
		assert.Equal(t, int64(1), src.calls.Load())
		assert.Equal(t, 1, o.Repositions())

		region, ok := o.Region()
		require.True(t, ok)
		assert.Equal(t, frag, region)

		b, err := o.BiomeAt(coords.New(5, 100))
		require.NoError(t, err)
		assert.Equal(t, Biome(1), b)
	})

	t.Run("lookups outside the window are rejected", func(t *testing.T) {
		o, err := NewCachedBiomeDataOracle(1, &countingOracle{})
		require.NoError(t, err)
		require.NoError(t, o.MoveCacheTo(ctx, frag))

		_, err = o.BiomeAt(coords.New(coords.FragmentSize, 0))
		assert.ErrorIs(t, err, ErrOutsideCachedRegion)
		_, err = o.BiomeAt(coords.New(-1, 0))
		assert.ErrorIs(t, err, ErrOutsideCachedRegion)
	})

	t.Run("fetch failure keeps the previous window", func(t *testing.T) {
		src := &countingOracle{}
		o, err := NewCachedBiomeDataOracle(1, src)
		require.NoError(t, err)
		require.NoError(t, o.MoveCacheTo(ctx, frag))

		boom := errors.New("boom")
		src.err = boom
		err = o.MoveCacheTo(ctx, coords.FragmentAt(1, 0))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, coords.FragmentAt(1, 0), fe.Box)

		region, _ := o.Region()
		assert.Equal(t, frag, region)
		assert.Equal(t, 1, o.Repositions())
	})

	t.Run("shares grids through the tile cache", func(t *testing.T) {
		src := &countingOracle{}
		tiles := NewTileCache()
		a, err := NewCachedBiomeDataOracle(7, src, WithTileCache(tiles))
		require.NoError(t, err)
		b, err := NewCachedBiomeDataOracle(7, src, WithTileCache(tiles))
		require.NoError(t, err)

		require.NoError(t, a.MoveCacheTo(ctx, frag))
		require.NoError(t, b.MoveCacheTo(ctx, frag))
		assert.Equal(t, int64(1), src.calls.Load())

		other, err := NewCachedBiomeDataOracle(8, src, WithTileCache(tiles))
		require.NoError(t, err)
		require.NoError(t, other.MoveCacheTo(ctx, frag))
		assert.Equal(t, int64(2), src.calls.Load(), "different seeds must not share tiles")
	})

	t.Run("fingerprint separates sources of one seed", func(t *testing.T) {
		tiles := NewTileCache()
		inner := &countingOracle{}
		small := &fingerprintOracle{countingOracle: inner, fp: "cell=64"}
		large := &fingerprintOracle{countingOracle: inner, fp: "cell=256"}

		a, err := NewCachedBiomeDataOracle(7, small, WithTileCache(tiles))
		require.NoError(t, err)
		b, err := NewCachedBiomeDataOracle(7, large, WithTileCache(tiles))
		require.NoError(t, err)
		c, err := NewCachedBiomeDataOracle(7, &fingerprintOracle{countingOracle: inner, fp: "cell=64"}, WithTileCache(tiles))
		require.NoError(t, err)

		require.NoError(t, a.MoveCacheTo(ctx, frag))
		require.NoError(t, b.MoveCacheTo(ctx, frag))
		assert.Equal(t, int64(2), inner.calls.Load())
		require.NoError(t, c.MoveCacheTo(ctx, frag))
		assert.Equal(t, int64(2), inner.calls.Load(), "equal fingerprints share tiles")
	})

	t.Run("repositions count moves", func(t *testing.T) {
		o, err := NewCachedBiomeDataOracle(1, &countingOracle{})
		require.NoError(t, err)
		for _, fx := range []int64{0, 1, 0} {
			require.NoError(t, o.MoveCacheTo(ctx, coords.FragmentAt(fx, 0)))
		}
		assert.Equal(t, 3, o.Repositions())
	})
}

type fingerprintOracle struct {
	*countingOracle
	fp string
}

func (o *fingerprintOracle) Fingerprint() string { return o.fp }

func TestTileCache(t *testing.T) {
	ctx := context.Background()
	src := &countingOracle{}
	fetchFor := func(box coords.Box) func(context.Context) (*BiomeGrid, error) {
		return func(ctx context.Context) (*BiomeGrid, error) {
			return src.Biomes(ctx, box, coords.ResolutionChunk)
		}
	}
	key := func(fx int64) TileKey {
		return TileKey{Seed: 1, Box: coords.FragmentAt(fx, 0), Res: coords.ResolutionChunk}
	}

	t.Run("evicts least recently used", func(t *testing.T) {
		c := NewTileCache(WithMaxTiles(2))
		for _, fx := range []int64{0, 1, 0, 2} {
			_, err := c.GetOrFetch(ctx, key(fx), fetchFor(key(fx).Box))
			require.NoError(t, err)
		}
		stats := c.Stats()
		assert.Equal(t, 2, stats.Entries)
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(3), stats.Misses)
		assert.Equal(t, int64(1), stats.Evictions)
		assert.InDelta(t, 25.0, stats.HitRate(), 0.001)

		// fragment 1 was evicted, fragment 0 survived
		before := c.Stats().Fetches
		_, err := c.GetOrFetch(ctx, key(0), fetchFor(key(0).Box))
		require.NoError(t, err)
		assert.Equal(t, before, c.Stats().Fetches)
		_, err = c.GetOrFetch(ctx, key(1), fetchFor(key(1).Box))
		require.NoError(t, err)
		assert.Equal(t, before+1, c.Stats().Fetches)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		c := NewTileCache()
		boom := errors.New("boom")
		calls := 0
		failing := func(context.Context) (*BiomeGrid, error) {
			calls++
			return nil, boom
		}
		_, err := c.GetOrFetch(ctx, key(5), failing)
		assert.ErrorIs(t, err, boom)
		_, err = c.GetOrFetch(ctx, key(5), failing)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("concurrent misses fetch once", func(t *testing.T) {
		slow := &countingOracle{delay: 50 * time.Millisecond}
		c := NewTileCache()
		k := key(9)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.GetOrFetch(ctx, k, func(ctx context.Context) (*BiomeGrid, error) {
					return slow.Biomes(ctx, k.Box, k.Res)
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(1), slow.calls.Load())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("purge drops everything", func(t *testing.T) {
		c := NewTileCache()
		_, err := c.GetOrFetch(ctx, key(0), fetchFor(key(0).Box))
		require.NoError(t, err)
		c.Purge()
		assert.Equal(t, 0, c.Len())
	})
}
