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

import "fmt"

// FragmentSize is the edge length of a fragment box in blocks.
const FragmentSize = int64(512)

// Box is an axis-aligned rectangle in block units.
//
// Corner is the minimum (north-west) corner; the box covers
// [Corner.X, Corner.X+Width) x [Corner.Z, Corner.Z+Height). Res is the
// granularity the box is meant to be examined at and is carried through Move.
type Box struct {
	Corner Coordinates `json:"corner"`
	Width  int64       `json:"width"`
	Height int64       `json:"height"`
	Res    Resolution  `json:"resolution"`
}

// NewBox returns a box with the given corner and size.
func NewBox(corner Coordinates, width, height int64, res Resolution) Box {
	return Box{Corner: corner, Width: width, Height: height, Res: res}
}

// FragmentAt returns the fragment-sized box at fragment index (fx, fz)
// relative to the origin.
func FragmentAt(fx, fz int64) Box {
	return Box{
		Corner: Coordinates{X: ResolutionFragment.FromGrid(fx), Z: ResolutionFragment.FromGrid(fz)},
		Width:  FragmentSize,
		Height: FragmentSize,
		Res:    ResolutionFragment,
	}
}

// Move returns the box translated by off.
func (b Box) Move(off Coordinates) Box {
	b.Corner = b.Corner.Add(off)
	return b
}

// Max returns the exclusive maximum corner.
func (b Box) Max() Coordinates {
	return Coordinates{X: b.Corner.X + b.Width, Z: b.Corner.Z + b.Height}
}

// Empty reports whether the box covers no blocks.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Contains reports whether the block c lies inside the box.
func (b Box) Contains(c Coordinates) bool {
	max := b.Max()
	return c.X >= b.Corner.X && c.X < max.X && c.Z >= b.Corner.Z && c.Z < max.Z
}

// ContainsBox reports whether other lies entirely inside b.
func (b Box) ContainsBox(other Box) bool {
	if other.Empty() {
		return true
	}
	om := other.Max()
	bm := b.Max()
	return other.Corner.X >= b.Corner.X && other.Corner.Z >= b.Corner.Z &&
		om.X <= bm.X && om.Z <= bm.Z
}

// Intersect returns the overlap of b and other, and false when they do not
// overlap. The result keeps b's resolution.
func (b Box) Intersect(other Box) (Box, bool) {
	bm, om := b.Max(), other.Max()
	x0, z0 := maxInt64(b.Corner.X, other.Corner.X), maxInt64(b.Corner.Z, other.Corner.Z)
	x1, z1 := minInt64(bm.X, om.X), minInt64(bm.Z, om.Z)
	if x0 >= x1 || z0 >= z1 {
		return Box{}, false
	}
	return Box{Corner: Coordinates{X: x0, Z: z0}, Width: x1 - x0, Height: z1 - z0, Res: b.Res}, true
}

// GridBounds returns the half-open range of cell indices at resolution res
// covering the box: cells [x0, x1) x [z0, z1).
func (b Box) GridBounds(res Resolution) (x0, z0, x1, z1 int64) {
	if b.Empty() {
		return 0, 0, 0, 0
	}
	max := b.Max()
	x0, z0 = res.ToGrid(b.Corner.X), res.ToGrid(b.Corner.Z)
	x1, z1 = res.ToGrid(max.X-1)+1, res.ToGrid(max.Z-1)+1
	return x0, z0, x1, z1
}

// Cells returns the number of cells of resolution res covering the box.
func (b Box) Cells(res Resolution) int64 {
	x0, z0, x1, z1 := b.GridBounds(res)
	return (x1 - x0) * (z1 - z0)
}

// String implements fmt.Stringer.
func (b Box) String() string {
	return fmt.Sprintf("box%v+%dx%d@%s", b.Corner, b.Width, b.Height, b.Res)
}

// Spiral returns fragment indices within radius fragments of (0, 0) ordered
// outward ring by ring. Each ring starts at its north-west corner and walks
// clockwise. A negative radius yields no indices.
func Spiral(radius int) []Coordinates {
	if radius < 0 {
		return nil
	}
	out := make([]Coordinates, 0, (2*radius+1)*(2*radius+1))
	out = append(out, Coordinates{})
	for r := int64(1); r <= int64(radius); r++ {
		for x := -r; x <= r; x++ {
			out = append(out, Coordinates{X: x, Z: -r})
		}
		for z := -r + 1; z <= r; z++ {
			out = append(out, Coordinates{X: r, Z: z})
		}
		for x := r - 1; x >= -r; x-- {
			out = append(out, Coordinates{X: x, Z: r})
		}
		for z := r - 1; z > -r; z-- {
			out = append(out, Coordinates{X: -r, Z: z})
		}
	}
	return out
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
