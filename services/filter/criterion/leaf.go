// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package criterion

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// MaxRadius is the largest search radius a leaf accepts, in fragments.
const MaxRadius = 64

// Structure is satisfied by any instance of Kind within Radius fragments of
// the origin.
//
// Fragments are searched in coords.Spiral order. The first fragment holding
// an instance resolves the leaf to True and every instance in that fragment
// becomes an Item.
type Structure struct {
	id     ID
	Kind   world.StructureKind
	Radius int

	order []coords.Coordinates
}

// ID implements Criterion.
func (c *Structure) ID() ID { return c.id }

// Children implements Criterion.
func (c *Structure) Children() []Criterion { return nil }

// MaxRegions returns the size of the search space.
func (c *Structure) MaxRegions() int { return len(c.order) }

// NextRegionToCheck implements Criterion.
func (c *Structure) NextRegionToCheck(results ResultsMap) (coords.Box, bool) {
	return nextLeafRegion(results, c.id, c.order)
}

// CheckRegion implements Criterion.
func (c *Structure) CheckRegion(ctx context.Context, results ResultsMap, w *world.World, origin coords.Coordinates, region coords.Box) (TriState, error) {
	r := results.Get(c.id)
	if r == nil || r.Matched.Known() {
		return results.Matched(c.id), nil
	}

	// A world that does not generate the kind has no instance of it.
	if !w.Supports(c.Kind) {
		r.Resolve(False)
		return False, nil
	}

	found, err := w.StructuresIn(ctx, c.Kind, region.Move(origin))
	if err != nil {
		return Unknown, err
	}
	r.Cursor++

	if len(found) > 0 {
		items := make([]Item, len(found))
		for i, pos := range found {
			items[i] = Item{Kind: string(c.Kind), Pos: pos}
		}
		r.Resolve(True, items...)
	} else if r.Cursor >= len(c.order) {
		r.Resolve(False)
	}
	return r.Matched, nil
}

func (c *Structure) String() string {
	return fmt.Sprintf("structure(%s, r=%d)", c.Kind, c.Radius)
}

func (c *Structure) validate() error {
	if c.Kind == "" {
		return fmt.Errorf("%w: structure kind is empty", ErrInvalidLeaf)
	}
	if c.Radius > MaxRadius {
		return fmt.Errorf("%w: radius %d exceeds %d", ErrInvalidLeaf, c.Radius, MaxRadius)
	}
	return nil
}

// Biome is satisfied when at least MinCells cells of one fragment within
// Radius fragments of the origin belong to Biomes.
//
// The first matching cell of the deciding fragment becomes the Item.
type Biome struct {
	id       ID
	Biomes   oracle.BiomeSet
	Radius   int
	MinCells int

	order []coords.Coordinates
}

// Biome adds a biome leaf. A minCells below one is treated as one.
func (t *Tree) Biome(biomes oracle.BiomeSet, radius, minCells int) Criterion {
	if !t.admit("biome") {
		return nil
	}
	if minCells < 1 {
		minCells = 1
	}
	c := &Biome{id: ID(len(t.nodes)), Biomes: biomes, Radius: radius, MinCells: minCells}
	if err := c.validate(); err != nil {
		t.errs = append(t.errs, &NodeError{Node: c.String(), Err: err})
		return nil
	}
	c.order = coords.Spiral(radius)
	t.nodes = append(t.nodes, c)
	return c
}

// ID implements Criterion.
func (c *Biome) ID() ID { return c.id }

// Children implements Criterion.
func (c *Biome) Children() []Criterion { return nil }

// MaxRegions returns the size of the search space.
func (c *Biome) MaxRegions() int { return len(c.order) }

// NextRegionToCheck implements Criterion.
func (c *Biome) NextRegionToCheck(results ResultsMap) (coords.Box, bool) {
	return nextLeafRegion(results, c.id, c.order)
}

// CheckRegion implements Criterion.
func (c *Biome) CheckRegion(ctx context.Context, results ResultsMap, w *world.World, origin coords.Coordinates, region coords.Box) (TriState, error) {
	r := results.Get(c.id)
	if r == nil || r.Matched.Known() {
		return results.Matched(c.id), nil
	}

	box := region.Move(origin)
	if err := w.MoveCacheTo(ctx, box); err != nil {
		return Unknown, err
	}
	grid, err := w.Biomes().Grid()
	if err != nil {
		return Unknown, err
	}
	r.Cursor++

	var (
		count int
		first Item
	)
	grid.Each(box, func(pos coords.Coordinates, b oracle.Biome) bool {
		if !c.Biomes.Has(b) {
			return true
		}
		if count == 0 {
			first = Item{Kind: b.String(), Pos: pos}
		}
		count++
		return count < c.MinCells
	})

	if count >= c.MinCells {
		r.Resolve(True, first)
	} else if r.Cursor >= len(c.order) {
		r.Resolve(False)
	}
	return r.Matched, nil
}

func (c *Biome) String() string {
	names := make([]string, 0)
	for _, b := range c.Biomes.Biomes() {
		names = append(names, b.String())
	}
	return fmt.Sprintf("biome(%s, r=%d, min=%d)", strings.Join(names, "|"), c.Radius, c.MinCells)
}

func (c *Biome) validate() error {
	if len(c.Biomes.Biomes()) == 0 {
		return fmt.Errorf("%w: biome set is empty", ErrInvalidLeaf)
	}
	if c.Radius > MaxRadius {
		return fmt.Errorf("%w: radius %d exceeds %d", ErrInvalidLeaf, c.Radius, MaxRadius)
	}
	return nil
}

// nextLeafRegion walks a leaf's search order. An exhausted or empty order
// resolves the leaf to False.
func nextLeafRegion(results ResultsMap, id ID, order []coords.Coordinates) (coords.Box, bool) {
	r := results.Get(id)
	if r == nil || r.Matched.Known() {
		return coords.Box{}, false
	}
	if r.Cursor >= len(order) {
		r.Resolve(False)
		return coords.Box{}, false
	}
	idx := order[r.Cursor]
	return coords.FragmentAt(idx.X, idx.Z), true
}
