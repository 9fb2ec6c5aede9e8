// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFilter is returned when a Scanner is built or swapped without a filter.
	ErrNilFilter = errors.New("scan: nil filter")

	// ErrNilSourceFunc is returned when a Scanner has no way to open worlds.
	ErrNilSourceFunc = errors.New("scan: nil source func")

	// ErrEmptyRange is returned for a SeedRange with From >= To.
	ErrEmptyRange = errors.New("scan: empty seed range")
)

// SeedError attaches a seed to a failure that happened outside the filter,
// such as opening its world or storing its match.
type SeedError struct {
	Seed int64
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed %d: %v", e.Seed, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}
