// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle provides access to generated biome data.
//
// Biome data is produced by an expensive BiomeDataOracle. The engine never
// queries it directly: every evaluation wraps it in a CachedBiomeDataOracle
// whose single cached window is repositioned before each region is examined,
// optionally backed by a TileCache shared between concurrent evaluations.
//
// # Thread Safety
//
// TileCache is safe for concurrent use. CachedBiomeDataOracle is owned by one
// evaluation and must not be shared.
package oracle

import (
	"fmt"
	"strings"
)

// Biome identifies a generated biome.
type Biome uint8

const (
	BiomeOcean Biome = iota
	BiomePlains
	BiomeDesert
	BiomeMountains
	BiomeForest
	BiomeTaiga
	BiomeSwamp
	BiomeRiver
	BiomeSnowyTundra
	BiomeJungle
	BiomeSavanna
	BiomeBadlands
	BiomeMushroomFields

	biomeCount
)

var biomeNames = [...]string{
	BiomeOcean:          "ocean",
	BiomePlains:         "plains",
	BiomeDesert:         "desert",
	BiomeMountains:      "mountains",
	BiomeForest:         "forest",
	BiomeTaiga:          "taiga",
	BiomeSwamp:          "swamp",
	BiomeRiver:          "river",
	BiomeSnowyTundra:    "snowy_tundra",
	BiomeJungle:         "jungle",
	BiomeSavanna:        "savanna",
	BiomeBadlands:       "badlands",
	BiomeMushroomFields: "mushroom_fields",
}

// String returns the snake_case biome name.
func (b Biome) String() string {
	if b >= biomeCount {
		return fmt.Sprintf("biome(%d)", uint8(b))
	}
	return biomeNames[b]
}

// IsLand reports whether players can spawn on the biome.
func (b Biome) IsLand() bool {
	return b != BiomeOcean && b != BiomeRiver && b < biomeCount
}

// BiomeCount returns the number of declared biomes.
func BiomeCount() int {
	return int(biomeCount)
}

// ParseBiome resolves a biome by name, case-insensitively.
func ParseBiome(name string) (Biome, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range biomeNames {
		if candidate == n {
			return Biome(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBiome, name)
}

// BiomeSet is a small set of biomes.
type BiomeSet uint32

// NewBiomeSet returns the set containing biomes.
func NewBiomeSet(biomes ...Biome) BiomeSet {
	var s BiomeSet
	for _, b := range biomes {
		s |= 1 << b
	}
	return s
}

// Has reports whether b is in the set.
func (s BiomeSet) Has(b Biome) bool {
	return b < biomeCount && s&(1<<b) != 0
}

// Biomes lists the members in declaration order.
func (s BiomeSet) Biomes() []Biome {
	var out []Biome
	for b := Biome(0); b < biomeCount; b++ {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}
