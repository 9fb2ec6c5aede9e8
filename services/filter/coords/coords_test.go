// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolution_ToGridFloorsNegatives(t *testing.T) {
	tests := []struct {
		res   Resolution
		block int64
		want  int64
	}{
		{ResolutionWorld, -1, -1},
		{ResolutionQuarter, -1, -1},
		{ResolutionQuarter, -4, -1},
		{ResolutionQuarter, -5, -2},
		{ResolutionChunk, 15, 0},
		{ResolutionChunk, 16, 1},
		{ResolutionFragment, -512, -1},
		{ResolutionFragment, -513, -2},
		{ResolutionFragment, 511, 0},
	}

	for _, tt := range tests {
		t.Run(tt.res.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.ToGrid(tt.block))
		})
	}
}

func TestResolution_Convert(t *testing.T) {
	assert.Equal(t, int64(128), ResolutionFragment.Convert(1, ResolutionQuarter))
	assert.Equal(t, int64(1), ResolutionQuarter.Convert(128, ResolutionFragment))
	assert.Equal(t, int64(-1), ResolutionChunk.Convert(-1, ResolutionFragment))
	assert.Equal(t, int64(32), ResolutionFragment.Convert(1, ResolutionChunk))
	assert.True(t, ResolutionQuarter.Finer(ResolutionChunk))
	assert.False(t, ResolutionFragment.Finer(ResolutionNetherChunk))
	assert.Equal(t, int64(128), ResolutionNetherChunk.BlocksPerCell())
}

func TestResolution_InvalidPanics(t *testing.T) {
	assert.Panics(t, func() { Resolution(42).Shift() })
	assert.Equal(t, "unknown", Resolution(-1).String())
}

func TestBox_MoveAndContains(t *testing.T) {
	b := FragmentAt(1, -1)
	assert.Equal(t, New(512, -512), b.Corner)

	moved := b.Move(New(10, 20))
	assert.Equal(t, New(522, -492), moved.Corner)
	assert.Equal(t, b.Width, moved.Width)
	assert.Equal(t, ResolutionFragment, moved.Res)

	assert.True(t, moved.Contains(New(522, -492)))
	assert.True(t, moved.Contains(New(1033, 19)))
	assert.False(t, moved.Contains(New(1034, 19)))
	assert.False(t, moved.Contains(New(521, -492)))
}

func TestBox_ContainsBoxAndIntersect(t *testing.T) {
	outer := NewBox(New(0, 0), 100, 100, ResolutionWorld)
	inner := NewBox(New(10, 10), 20, 20, ResolutionWorld)
	partial := NewBox(New(90, 90), 20, 20, ResolutionWorld)

	assert.True(t, outer.ContainsBox(inner))
	assert.False(t, outer.ContainsBox(partial))

	got, ok := outer.Intersect(partial)
	require.True(t, ok)
	assert.Equal(t, NewBox(New(90, 90), 10, 10, ResolutionWorld), got)

	_, ok = inner.Intersect(partial)
	assert.False(t, ok)
}

func TestBox_GridBounds(t *testing.T) {
	b := NewBox(New(-6, 3), 10, 6, ResolutionQuarter)
	x0, z0, x1, z1 := b.GridBounds(ResolutionQuarter)
	assert.Equal(t, []int64{-2, 0, 1, 3}, []int64{x0, z0, x1, z1})
	assert.Equal(t, int64(9), b.Cells(ResolutionQuarter))
	assert.Equal(t, int64(16384), FragmentAt(0, 0).Cells(ResolutionQuarter))
}

func TestSpiral(t *testing.T) {
	t.Run("negative radius is empty", func(t *testing.T) {
		assert.Empty(t, Spiral(-1))
	})

	t.Run("radius zero is the origin fragment", func(t *testing.T) {
		assert.Equal(t, []Coordinates{{}}, Spiral(0))
	})

	t.Run("rings are complete and unique", func(t *testing.T) {
		for radius := 1; radius <= 4; radius++ {
			got := Spiral(radius)
			require.Len(t, got, (2*radius+1)*(2*radius+1))

			seen := make(map[Coordinates]bool)
			for _, c := range got {
				assert.False(t, seen[c], "duplicate %v", c)
				seen[c] = true
				assert.LessOrEqual(t, abs(c.X), int64(radius))
				assert.LessOrEqual(t, abs(c.Z), int64(radius))
			}
		}
	})

	t.Run("order is outward", func(t *testing.T) {
		got := Spiral(2)
		ring := func(c Coordinates) int64 { return max(abs(c.X), abs(c.Z)) }
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, ring(got[i-1]), ring(got[i]))
		}
		assert.Equal(t, New(-1, -1), got[1])
	})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
