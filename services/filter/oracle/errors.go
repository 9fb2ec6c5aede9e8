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
	"errors"
	"fmt"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// Sentinel errors for biome oracles.
var (
	// ErrOutsideCachedRegion indicates a lookup outside the cached window.
	// The engine must reposition the cache before querying a new region, so
	// this is an invariant violation rather than a cache miss.
	ErrOutsideCachedRegion = errors.New("lookup outside cached region")

	// ErrNoCachedRegion indicates a lookup before the first reposition.
	ErrNoCachedRegion = errors.New("cache has not been positioned")

	// ErrNilSource indicates a nil BiomeDataOracle was supplied.
	ErrNilSource = errors.New("biome data oracle must not be nil")

	// ErrUnknownBiome indicates an unrecognised biome name.
	ErrUnknownBiome = errors.New("unknown biome")
)

// FetchError wraps a failure of the underlying oracle for one box.
type FetchError struct {
	Box coords.Box
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch biomes for %s: %v", e.Box, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
