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
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// BiomeGrid holds the biomes of every cell covering a box.
//
// A grid is immutable once returned by an oracle; TileCache shares the same
// grid between evaluations.
type BiomeGrid struct {
	box    coords.Box
	res    coords.Resolution
	x0, z0 int64
	w, h   int64
	cells  []Biome
}

// NewBiomeGrid allocates a grid of cells at resolution res covering box.
func NewBiomeGrid(box coords.Box, res coords.Resolution) *BiomeGrid {
	x0, z0, x1, z1 := box.GridBounds(res)
	w, h := x1-x0, z1-z0
	return &BiomeGrid{
		box:   box,
		res:   res,
		x0:    x0,
		z0:    z0,
		w:     w,
		h:     h,
		cells: make([]Biome, w*h),
	}
}

// Box returns the box the grid was produced for.
func (g *BiomeGrid) Box() coords.Box {
	return g.box
}

// Resolution returns the cell granularity.
func (g *BiomeGrid) Resolution() coords.Resolution {
	return g.res
}

// GridBounds returns the half-open range of cell indices held.
func (g *BiomeGrid) GridBounds() (x0, z0, x1, z1 int64) {
	return g.x0, g.z0, g.x0 + g.w, g.z0 + g.h
}

// Set stores the biome of cell (gx, gz). Out of range cells are ignored.
func (g *BiomeGrid) Set(gx, gz int64, b Biome) {
	if i, ok := g.index(gx, gz); ok {
		g.cells[i] = b
	}
}

// Cell returns the biome of cell (gx, gz).
func (g *BiomeGrid) Cell(gx, gz int64) (Biome, bool) {
	i, ok := g.index(gx, gz)
	if !ok {
		return 0, false
	}
	return g.cells[i], true
}

// At returns the biome of the cell containing block c.
func (g *BiomeGrid) At(c coords.Coordinates) (Biome, bool) {
	return g.Cell(g.res.ToGrid(c.X), g.res.ToGrid(c.Z))
}

// Each calls fn for every cell inside sub (in block units), row by row,
// until fn returns false.
func (g *BiomeGrid) Each(sub coords.Box, fn func(c coords.Coordinates, b Biome) bool) {
	sx0, sz0, sx1, sz1 := sub.GridBounds(g.res)
	for gz := max(sz0, g.z0); gz < min(sz1, g.z0+g.h); gz++ {
		for gx := max(sx0, g.x0); gx < min(sx1, g.x0+g.w); gx++ {
			i, _ := g.index(gx, gz)
			c := coords.New(g.res.FromGrid(gx), g.res.FromGrid(gz))
			if !fn(c, g.cells[i]) {
				return
			}
		}
	}
}

func (g *BiomeGrid) index(gx, gz int64) (int, bool) {
	x, z := gx-g.x0, gz-g.z0
	if x < 0 || z < 0 || x >= g.w || z >= g.h {
		return 0, false
	}
	return int(z*g.w + x), true
}
