// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided names before they become storage
// keys or InfluxDB line protocol.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmpty is returned for an empty name.
	ErrEmpty = errors.New("validation: empty name")

	// ErrInvalidName is returned for a name outside its allowed pattern.
	ErrInvalidName = errors.New("validation: invalid name")
)

// runIDPattern matches scan run ids: UUIDs and short operator labels.
// Allows letters, digits, dots, underscores and hyphens. Max length 64.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// measurementPattern matches InfluxDB measurement names that need no
// escaping in line protocol.
var measurementPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidateRunID validates a scan run id.
//
// Run ids are embedded in "run/<id>/<seed>" keys, so a '/' would let one
// run's prefix scan read another run's matches.
//
// Example:
//
//	if err := validation.ValidateRunID(id); err != nil {
//	    return fmt.Errorf("results: %w", err)
//	}
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id: %w", ErrEmpty)
	}
	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("%w: run id %q (1-64 letters, digits, '.', '_' or '-')", ErrInvalidName, id)
	}
	return nil
}

// SanitizeRunID trims surrounding space from id and validates it.
func SanitizeRunID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := ValidateRunID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateMeasurement validates an InfluxDB measurement name.
func ValidateMeasurement(name string) error {
	if name == "" {
		return fmt.Errorf("measurement: %w", ErrEmpty)
	}
	if !measurementPattern.MatchString(name) {
		return fmt.Errorf("%w: measurement %q (lowercase letters, digits or '_', starting with a letter)", ErrInvalidName, name)
	}
	return nil
}
