// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coords defines the spatial units used by the criterion engine.
//
// All coordinates are world-block units. A Box is the unit of oracle cache
// repositioning; a Resolution is the grid granularity a box or a lookup is
// expressed in.
package coords

import "fmt"

// Coordinates is an immutable point in world-block units.
type Coordinates struct {
	X int64 `json:"x" yaml:"x"`
	Z int64 `json:"z" yaml:"z"`
}

// Origin returns the world origin (0, 0).
func Origin() Coordinates {
	return Coordinates{}
}

// New returns the point (x, z).
func New(x, z int64) Coordinates {
	return Coordinates{X: x, Z: z}
}

// Add returns c translated by off.
func (c Coordinates) Add(off Coordinates) Coordinates {
	return Coordinates{X: c.X + off.X, Z: c.Z + off.Z}
}

// Sub returns c minus other.
func (c Coordinates) Sub(other Coordinates) Coordinates {
	return Coordinates{X: c.X - other.X, Z: c.Z - other.Z}
}

// DistanceSq returns the squared euclidean distance between c and other.
func (c Coordinates) DistanceSq(other Coordinates) int64 {
	dx := c.X - other.X
	dz := c.Z - other.Z
	return dx*dx + dz*dz
}

// String implements fmt.Stringer.
func (c Coordinates) String() string {
	return fmt.Sprintf("[%d, %d]", c.X, c.Z)
}
