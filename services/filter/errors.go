// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"errors"
	"fmt"
)

// Sentinel errors for the filter engine.
var (
	// ErrNilCriterion indicates a missing mandatory or goal criterion.
	ErrNilCriterion = errors.New("criterion must not be nil")

	// ErrInvalidGoalName indicates an empty or padded goal name.
	ErrInvalidGoalName = errors.New("invalid goal name")

	// ErrDuplicateGoal indicates two goals with the same name.
	ErrDuplicateGoal = errors.New("duplicate goal name")

	// ErrNilSource indicates Match was called without a world.
	ErrNilSource = errors.New("world source must not be nil")

	// ErrUnresolvedCriterion indicates a criterion that reported it needs
	// no more regions while its result was still unknown. This is a defect
	// in the criterion, never a property of the world.
	ErrUnresolvedCriterion = errors.New("criterion finished without a decision")

	// ErrInconsistentCriterion indicates a CheckRegion whose returned state
	// differs from the state it left in the ResultsMap.
	ErrInconsistentCriterion = errors.New("criterion returned a state it did not store")
)

// GoalError wraps an error with the goal it concerns.
type GoalError struct {
	Goal string
	Err  error
}

// Error implements the error interface.
func (e *GoalError) Error() string {
	return fmt.Sprintf("goal %q: %v", e.Goal, e.Err)
}

// Unwrap returns the underlying error.
func (e *GoalError) Unwrap() error {
	return e.Err
}

// CriterionError wraps an evaluation error with the criterion it concerns.
type CriterionError struct {
	Criterion string
	Err       error
}

// Error implements the error interface.
func (e *CriterionError) Error() string {
	return fmt.Sprintf("criterion %s: %v", e.Criterion, e.Err)
}

// Unwrap returns the underlying error.
func (e *CriterionError) Unwrap() error {
	return e.Err
}
