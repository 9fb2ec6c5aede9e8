// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worldgen

import (
	"context"
	"fmt"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// locator finds structures of one kind for one seed.
type locator struct {
	seed int64
	kind world.StructureKind
	cfg  StructureConfig
}

// Locate implements world.StructureLocator.
func (l *locator) Locate(ctx context.Context, biomes oracle.QueryableOracle, box coords.Box) ([]coords.Coordinates, error) {
	if box.Empty() {
		return nil, nil
	}
	cx0, cz0, cx1, cz1 := box.GridBounds(coords.ResolutionChunk)
	spacing := int64(l.cfg.Spacing)
	rx0, rx1 := floorDiv(cx0, spacing), floorDiv(cx1-1, spacing)
	rz0, rz1 := floorDiv(cz0, spacing), floorDiv(cz1-1, spacing)

	var found []coords.Coordinates
	for rz := rz0; rz <= rz1; rz++ {
		for rx := rx0; rx <= rx1; rx++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pos := l.candidate(rx, rz)
			if !box.Contains(pos) {
				continue
			}
			b, err := biomes.BiomeAt(pos)
			if err != nil {
				return nil, fmt.Errorf("biome under %s candidate %s: %w", l.kind, pos, err)
			}
			if l.cfg.Biomes.Has(b) {
				found = append(found, pos)
			}
		}
	}
	return found, nil
}

// candidate returns the center block of the attempt chunk of region
// (rx, rz).
func (l *locator) candidate(rx, rz int64) coords.Coordinates {
	r := NewRandom(rx*341873128712 + rz*132897987541 + l.seed + l.cfg.Salt)
	spread := l.cfg.Spacing - l.cfg.Separation
	cx := rx*int64(l.cfg.Spacing) + int64(r.NextInt(spread))
	cz := rz*int64(l.cfg.Spacing) + int64(r.NextInt(spread))
	half := coords.ResolutionChunk.BlocksPerCell() / 2
	return coords.New(coords.ResolutionChunk.FromGrid(cx)+half, coords.ResolutionChunk.FromGrid(cz)+half)
}
