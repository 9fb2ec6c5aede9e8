// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package world defines the boundary between the filter engine and the
// worlds it evaluates.
//
// A Source is the external world: its seed, an optional spawn point, an
// expensive biome oracle and per-kind structure locators. World wraps a
// Source for exactly one evaluation, putting the biome oracle behind a
// single-window cache that every criterion shares.
package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
)

var (
	// ErrNilSource indicates a nil Source was supplied.
	ErrNilSource = errors.New("world source must not be nil")

	// ErrUnsupportedStructure indicates the source has no locator for a kind.
	ErrUnsupportedStructure = errors.New("structure kind not supported by world")

	// ErrUnknownStructure indicates an unrecognised structure kind name.
	ErrUnknownStructure = errors.New("unknown structure kind")
)

// StructureKind names a generated structure type.
type StructureKind string

const (
	StructureVillage      StructureKind = "village"
	StructureDesertTemple StructureKind = "desert_temple"
	StructureJungleTemple StructureKind = "jungle_temple"
	StructureWitchHut     StructureKind = "witch_hut"
	StructureMonument     StructureKind = "ocean_monument"
	StructureMansion      StructureKind = "woodland_mansion"
	StructureOutpost      StructureKind = "pillager_outpost"
)

var knownStructures = map[StructureKind]struct{}{
	StructureVillage:      {},
	StructureDesertTemple: {},
	StructureJungleTemple: {},
	StructureWitchHut:     {},
	StructureMonument:     {},
	StructureMansion:      {},
	StructureOutpost:      {},
}

// ParseStructureKind resolves a structure kind by name.
func ParseStructureKind(name string) (StructureKind, error) {
	k := StructureKind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := knownStructures[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStructure, name)
	}
	return k, nil
}

// StructureKinds returns every known kind, sorted by name.
func StructureKinds() []StructureKind {
	out := make([]StructureKind, 0, len(knownStructures))
	for k := range knownStructures {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StructureLocator finds instances of one structure kind.
type StructureLocator interface {
	// Locate returns the positions of every instance inside box. Biome
	// checks go through biomes, which the caller has positioned on box.
	Locate(ctx context.Context, biomes oracle.QueryableOracle, box coords.Box) ([]coords.Coordinates, error)
}

// Source is a world as seen by the filter engine.
type Source interface {
	// Seed returns the world seed.
	Seed() int64

	// Spawn returns the spawn point, if the world has one.
	Spawn() (coords.Coordinates, bool)

	// BiomeData returns the uncached biome oracle.
	BiomeData() oracle.BiomeDataOracle

	// Structures returns the locator for kind, if the world generates it.
	Structures(kind StructureKind) (StructureLocator, bool)
}

// World is a Source wrapped for a single evaluation.
//
// Thread Safety:
//
//	Not safe for concurrent use. Create one World per evaluation.
type World struct {
	src    Source
	biomes *oracle.CachedBiomeDataOracle
}

// Cached wraps src so every query during one evaluation reuses one biome
// cache. Options configure the cache, e.g. a shared oracle.TileCache.
func Cached(src Source, opts ...oracle.CachedOption) (*World, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	biomes, err := oracle.NewCachedBiomeDataOracle(src.Seed(), src.BiomeData(), opts...)
	if err != nil {
		return nil, fmt.Errorf("wrap biome oracle for seed %d: %w", src.Seed(), err)
	}
	return &World{src: src, biomes: biomes}, nil
}

// Seed returns the world seed.
func (w *World) Seed() int64 {
	return w.src.Seed()
}

// Spawn returns the world spawn point, if any.
func (w *World) Spawn() (coords.Coordinates, bool) {
	return w.src.Spawn()
}

// Source returns the wrapped source.
func (w *World) Source() Source {
	return w.src
}

// Biomes returns the cached biome view.
func (w *World) Biomes() oracle.QueryableOracle {
	return w.biomes
}

// MoveCacheTo repositions the biome cache on box.
func (w *World) MoveCacheTo(ctx context.Context, box coords.Box) error {
	return w.biomes.MoveCacheTo(ctx, box)
}

// Repositions returns the number of window moves made by the biome cache.
func (w *World) Repositions() int {
	return w.biomes.Repositions()
}

// Supports reports whether the world generates structures of kind.
func (w *World) Supports(kind StructureKind) bool {
	_, ok := w.src.Structures(kind)
	return ok
}

// StructuresIn returns the instances of kind inside box. It fails with
// ErrUnsupportedStructure when the world does not generate kind.
//
// The biome cache is repositioned on box first; that is a no-op when the
// engine already moved it there.
func (w *World) StructuresIn(ctx context.Context, kind StructureKind, box coords.Box) ([]coords.Coordinates, error) {
	locator, ok := w.src.Structures(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStructure, kind)
	}
	if err := w.biomes.MoveCacheTo(ctx, box); err != nil {
		return nil, err
	}
	found, err := locator.Locate(ctx, w.biomes, box)
	if err != nil {
		return nil, fmt.Errorf("locate %s in %s: %w", kind, box, err)
	}
	return found, nil
}
