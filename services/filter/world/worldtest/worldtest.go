// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worldtest provides in-memory world sources for tests.
package worldtest

import (
	"context"
	"sync"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// Oracle is a BiomeDataOracle that records every fetched box.
type Oracle struct {
	// Fill returns the biome of a cell. Nil fills with plains.
	Fill func(gx, gz int64) oracle.Biome

	// Err, when set, is returned by every fetch.
	Err error

	mu      sync.Mutex
	fetched []coords.Box
}

// Biomes implements oracle.BiomeDataOracle.
func (o *Oracle) Biomes(_ context.Context, box coords.Box, res coords.Resolution) (*oracle.BiomeGrid, error) {
	o.mu.Lock()
	o.fetched = append(o.fetched, box)
	err := o.Err
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g := oracle.NewBiomeGrid(box, res)
	x0, z0, x1, z1 := g.GridBounds()
	for gz := z0; gz < z1; gz++ {
		for gx := x0; gx < x1; gx++ {
			b := oracle.BiomePlains
			if o.Fill != nil {
				b = o.Fill(gx, gz)
			}
			g.Set(gx, gz, b)
		}
	}
	return g, nil
}

// Fetched returns the boxes fetched so far, in order.
func (o *Oracle) Fetched() []coords.Box {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]coords.Box(nil), o.fetched...)
}

// Calls returns the number of fetches.
func (o *Oracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.fetched)
}

// Locator returns fixed structure positions.
type Locator struct {
	Positions []coords.Coordinates
	Err       error

	mu    sync.Mutex
	calls int
}

// Locate implements world.StructureLocator.
func (l *Locator) Locate(_ context.Context, biomes oracle.QueryableOracle, box coords.Box) ([]coords.Coordinates, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if region, ok := biomes.Region(); !ok || region != box {
		return nil, oracle.ErrOutsideCachedRegion
	}
	var out []coords.Coordinates
	for _, p := range l.Positions {
		if box.Contains(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Calls returns the number of Locate calls.
func (l *Locator) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Source is an in-memory world.Source.
type Source struct {
	SeedValue  int64
	SpawnPoint *coords.Coordinates
	Oracle     *Oracle
	Locators   map[world.StructureKind]*Locator
}

// NewSource returns a source with a plains-only oracle and no structures.
func NewSource(seed int64) *Source {
	return &Source{
		SeedValue: seed,
		Oracle:    &Oracle{},
		Locators:  make(map[world.StructureKind]*Locator),
	}
}

// WithSpawn sets the spawn point.
func (s *Source) WithSpawn(c coords.Coordinates) *Source {
	s.SpawnPoint = &c
	return s
}

// WithStructures places structures of kind at positions.
func (s *Source) WithStructures(kind world.StructureKind, positions ...coords.Coordinates) *Source {
	s.Locators[kind] = &Locator{Positions: positions}
	return s
}

// Seed implements world.Source.
func (s *Source) Seed() int64 {
	return s.SeedValue
}

// Spawn implements world.Source.
func (s *Source) Spawn() (coords.Coordinates, bool) {
	if s.SpawnPoint == nil {
		return coords.Coordinates{}, false
	}
	return *s.SpawnPoint, true
}

// BiomeData implements world.Source.
func (s *Source) BiomeData() oracle.BiomeDataOracle {
	return s.Oracle
}

// Structures implements world.Source.
func (s *Source) Structures(kind world.StructureKind) (world.StructureLocator, bool) {
	l, ok := s.Locators[kind]
	if !ok {
		return nil, false
	}
	return l, true
}
