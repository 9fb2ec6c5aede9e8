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
	"errors"
	"fmt"
)

// Sentinel errors for tree construction.
var (
	// ErrForeignCriterion indicates a child that was not created by the tree
	// it is being attached in.
	ErrForeignCriterion = errors.New("criterion belongs to another tree")

	// ErrTreeSealed indicates a node was added after the tree was sealed.
	ErrTreeSealed = errors.New("criterion tree is sealed")

	// ErrInvalidLeaf indicates a leaf with unusable parameters.
	ErrInvalidLeaf = errors.New("invalid leaf criterion")
)

// NodeError wraps a construction error with the node it concerns.
type NodeError struct {
	Node string
	Err  error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("criterion %s: %v", e.Node, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}
