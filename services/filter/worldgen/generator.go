// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worldgen is a deterministic synthetic world generator.
//
// It produces the biome and structure data the filter engine consumes
// through world.Source. Biomes come from a per-cell hash of the seed,
// structures from a grid placement seeded with Java's LCG, and spawn from
// the first land biome found searching outward from (0, 0). The output is
// stable for a given seed and Config and makes no claim to reproduce any
// particular game.
package worldgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// ErrInjected is returned by fetches after FailAfter triggers, unless
// another error was supplied.
var ErrInjected = errors.New("injected biome fetch failure")

// Default generator parameters.
const (
	DefaultCellSize          = 256
	DefaultSpawnSearchRadius = 1024
	spawnSearchStep          = 16
)

// StructureConfig places one structure kind on a grid of regions.
//
// Every Spacing x Spacing chunk region gets one attempt at a chunk chosen
// within its first Spacing-Separation chunks on each axis. The attempt
// succeeds when the biome at the chunk center is in Biomes.
type StructureConfig struct {
	Spacing    int32
	Separation int32
	Salt       int64
	Biomes     oracle.BiomeSet
}

func (c StructureConfig) validate() error {
	if c.Spacing <= 0 || c.Separation < 0 || c.Separation >= c.Spacing {
		return fmt.Errorf("spacing %d and separation %d are inconsistent", c.Spacing, c.Separation)
	}
	return nil
}

// Config parameterizes a Generator.
type Config struct {
	// CellSize is the edge of a biome cell in blocks.
	CellSize int64

	// SpawnSearchRadius bounds the spawn search in blocks. Zero disables
	// spawn, so evaluations fall back to (0, 0).
	SpawnSearchRadius int64

	Structures map[world.StructureKind]StructureConfig
}

var overworld = oracle.NewBiomeSet(
	oracle.BiomePlains, oracle.BiomeDesert, oracle.BiomeSavanna,
	oracle.BiomeTaiga, oracle.BiomeSnowyTundra,
)

// DefaultConfig returns the stock generator configuration.
func DefaultConfig() Config {
	return Config{
		CellSize:          DefaultCellSize,
		SpawnSearchRadius: DefaultSpawnSearchRadius,
		Structures: map[world.StructureKind]StructureConfig{
			world.StructureVillage:      {Spacing: 32, Separation: 8, Salt: 10387312, Biomes: overworld},
			world.StructureOutpost:      {Spacing: 32, Separation: 8, Salt: 165745296, Biomes: overworld},
			world.StructureDesertTemple: {Spacing: 32, Separation: 8, Salt: 14357617, Biomes: oracle.NewBiomeSet(oracle.BiomeDesert)},
			world.StructureJungleTemple: {Spacing: 32, Separation: 8, Salt: 14357619, Biomes: oracle.NewBiomeSet(oracle.BiomeJungle)},
			world.StructureWitchHut:     {Spacing: 32, Separation: 8, Salt: 14357620, Biomes: oracle.NewBiomeSet(oracle.BiomeSwamp)},
			world.StructureMonument:     {Spacing: 32, Separation: 5, Salt: 10387313, Biomes: oracle.NewBiomeSet(oracle.BiomeOcean)},
			world.StructureMansion:      {Spacing: 80, Separation: 20, Salt: 10387319, Biomes: oracle.NewBiomeSet(oracle.BiomeForest)},
		},
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.CellSize <= 0 {
		return fmt.Errorf("cell size must be positive, got %d", c.CellSize)
	}
	if c.SpawnSearchRadius < 0 {
		return fmt.Errorf("spawn search radius must not be negative, got %d", c.SpawnSearchRadius)
	}
	for kind, sc := range c.Structures {
		if err := sc.validate(); err != nil {
			return fmt.Errorf("structure %s: %w", kind, err)
		}
	}
	return nil
}

// Generator is the synthetic world of one seed. It implements
// world.Source and oracle.BiomeDataOracle.
//
// Thread Safety:
//
//	Generator is safe for concurrent use.
type Generator struct {
	seed int64
	cfg  Config

	fetches   atomic.Int64
	failAfter atomic.Int64
	failMu    sync.Mutex
	failErr   error

	spawnOnce sync.Once
	spawn     coords.Coordinates
	hasSpawn  bool
}

// New returns the generator for seed. The config is validated.
func New(seed int64, cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worldgen config: %w", err)
	}
	g := &Generator{seed: seed, cfg: cfg}
	g.failAfter.Store(-1)
	return g, nil
}

// Factory returns a constructor of generators sharing cfg, suitable for
// scanning seed ranges.
func Factory(cfg Config) (func(seed int64) (world.Source, error), error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worldgen config: %w", err)
	}
	return func(seed int64) (world.Source, error) {
		return New(seed, cfg)
	}, nil
}

// Seed implements world.Source.
func (g *Generator) Seed() int64 {
	return g.seed
}

// BiomeData implements world.Source.
func (g *Generator) BiomeData() oracle.BiomeDataOracle {
	return g
}

// Structures implements world.Source.
func (g *Generator) Structures(kind world.StructureKind) (world.StructureLocator, bool) {
	sc, ok := g.cfg.Structures[kind]
	if !ok {
		return nil, false
	}
	return &locator{seed: g.seed, kind: kind, cfg: sc}, true
}

// Spawn implements world.Source.
//
// The search walks a spiral of spawnSearchStep-block steps out to
// SpawnSearchRadius and returns the first land biome. It runs once.
func (g *Generator) Spawn() (coords.Coordinates, bool) {
	g.spawnOnce.Do(func() {
		steps := int(g.cfg.SpawnSearchRadius / spawnSearchStep)
		if g.cfg.SpawnSearchRadius <= 0 {
			return
		}
		for _, off := range coords.Spiral(steps) {
			c := coords.New(off.X*spawnSearchStep, off.Z*spawnSearchStep)
			if g.BiomeAt(c).IsLand() {
				g.spawn, g.hasSpawn = c, true
				return
			}
		}
	})
	return g.spawn, g.hasSpawn
}

// Biomes implements oracle.BiomeDataOracle. Each cell takes the biome at
// its minimum corner.
func (g *Generator) Biomes(ctx context.Context, box coords.Box, res coords.Resolution) (*oracle.BiomeGrid, error) {
	n := g.fetches.Add(1)
	if after := g.failAfter.Load(); after >= 0 && n > after {
		g.failMu.Lock()
		err := g.failErr
		g.failMu.Unlock()
		if err == nil {
			err = ErrInjected
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !res.Valid() {
		return nil, fmt.Errorf("invalid resolution %d", res)
	}

	grid := oracle.NewBiomeGrid(box, res)
	x0, z0, x1, z1 := grid.GridBounds()
	for gz := z0; gz < z1; gz++ {
		for gx := x0; gx < x1; gx++ {
			grid.Set(gx, gz, g.BiomeAt(coords.New(res.FromGrid(gx), res.FromGrid(gz))))
		}
	}
	return grid, nil
}

// Fingerprint implements oracle.Fingerprinter. Biome grids depend only on
// the seed and CellSize, so generators that differ in structure settings
// still share tiles.
func (g *Generator) Fingerprint() string {
	return fmt.Sprintf("worldgen/cell=%d", g.cfg.CellSize)
}

// BiomeAt returns the biome of the block c.
func (g *Generator) BiomeAt(c coords.Coordinates) oracle.Biome {
	cx := floorDiv(c.X, g.cfg.CellSize)
	cz := floorDiv(c.Z, g.cfg.CellSize)
	return biomeFrom(hash2(g.seed, cx, cz))
}

// Fetches returns the number of Biomes calls so far.
func (g *Generator) Fetches() int64 {
	return g.fetches.Load()
}

// FailAfter makes every fetch after the first n fail with err, or with
// ErrInjected when err is nil. A negative n disables the failure.
func (g *Generator) FailAfter(n int64, err error) {
	g.failMu.Lock()
	g.failErr = err
	g.failMu.Unlock()
	g.failAfter.Store(n)
}

// biomeWeights is the relative frequency of each biome.
var biomeWeights = [...]struct {
	biome  oracle.Biome
	weight uint64
}{
	{oracle.BiomeOcean, 20},
	{oracle.BiomePlains, 14},
	{oracle.BiomeForest, 12},
	{oracle.BiomeDesert, 8},
	{oracle.BiomeMountains, 6},
	{oracle.BiomeTaiga, 6},
	{oracle.BiomeSavanna, 6},
	{oracle.BiomeSwamp, 5},
	{oracle.BiomeJungle, 5},
	{oracle.BiomeRiver, 4},
	{oracle.BiomeSnowyTundra, 4},
	{oracle.BiomeBadlands, 3},
	{oracle.BiomeMushroomFields, 1},
}

var biomeWeightTotal = func() uint64 {
	var total uint64
	for _, w := range biomeWeights {
		total += w.weight
	}
	return total
}()

func biomeFrom(noise uint64) oracle.Biome {
	n := noise % biomeWeightTotal
	for _, w := range biomeWeights {
		if n < w.weight {
			return w.biome
		}
		n -= w.weight
	}
	return oracle.BiomeOcean
}
