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
	"encoding/json"
	"fmt"
)

// TriState is the three-valued outcome of a criterion.
//
// Unknown means not enough regions have been examined yet. It is never a
// final answer.
type TriState int8

const (
	Unknown TriState = iota
	True
	False
)

// FromBool converts b to True or False.
func FromBool(b bool) TriState {
	if b {
		return True
	}
	return False
}

// Known reports whether t is True or False.
func (t TriState) Known() bool {
	return t == True || t == False
}

// String implements fmt.Stringer.
func (t TriState) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case True:
		return "true"
	case False:
		return "false"
	default:
		return fmt.Sprintf("tristate(%d)", int8(t))
	}
}

// MarshalJSON encodes the state by name.
func (t TriState) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
