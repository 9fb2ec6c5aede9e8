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

// Resolution is a spatial granularity. Resolutions are ordered from finest
// (World, one block per cell) to coarsest (Fragment, 512 blocks per cell).
type Resolution int

const (
	// ResolutionWorld is one block per cell.
	ResolutionWorld Resolution = iota

	// ResolutionQuarter is 4 blocks per cell, the granularity biome data is
	// produced at.
	ResolutionQuarter

	// ResolutionChunk is 16 blocks per cell.
	ResolutionChunk

	// ResolutionNetherChunk is 128 blocks per cell.
	ResolutionNetherChunk

	// ResolutionFragment is 512 blocks per cell. It is the size of the
	// regions the engine repositions the oracle cache to.
	ResolutionFragment
)

var resolutionShifts = [...]uint{0, 2, 4, 7, 9}

var resolutionNames = [...]string{"world", "quarter", "chunk", "nether_chunk", "fragment"}

// Valid reports whether r is one of the declared resolutions.
func (r Resolution) Valid() bool {
	return r >= ResolutionWorld && r <= ResolutionFragment
}

// Shift returns log2 of the number of blocks per cell.
func (r Resolution) Shift() uint {
	if !r.Valid() {
		panic(fmt.Sprintf("coords: invalid resolution %d", int(r)))
	}
	return resolutionShifts[r]
}

// BlocksPerCell returns the edge length of one cell in blocks.
func (r Resolution) BlocksPerCell() int64 {
	return int64(1) << r.Shift()
}

// ToGrid converts a block coordinate to the index of the cell containing it.
// Negative coordinates floor towards negative infinity.
func (r Resolution) ToGrid(block int64) int64 {
	return block >> r.Shift()
}

// FromGrid converts a cell index to the block coordinate of its corner.
func (r Resolution) FromGrid(cell int64) int64 {
	return cell << r.Shift()
}

// Convert converts a cell index expressed in r to the index of the cell
// containing the same corner in resolution to.
func (r Resolution) Convert(cell int64, to Resolution) int64 {
	from, dst := r.Shift(), to.Shift()
	if dst < from {
		return cell << (from - dst)
	}
	return cell >> (dst - from)
}

// Finer reports whether r has smaller cells than other.
func (r Resolution) Finer(other Resolution) bool {
	return r < other
}

// String returns the lowercase name of the resolution.
func (r Resolution) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return resolutionNames[r]
}
