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
	"sort"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// Item is one matched instance surfaced in a filter result.
type Item struct {
	// Kind is the structure kind or biome name that matched.
	Kind string `json:"kind"`

	// Pos is the block position of the instance.
	Pos coords.Coordinates `json:"pos"`
}

// Result is the per-evaluation state of one criterion.
//
// Matched is only meaningful once it is no longer Unknown. Cursor is the
// criterion's position in its own search order; only the owning criterion
// reads or writes it.
type Result struct {
	Matched TriState
	Items   []Item
	Cursor  int

	claimed bool
}

// Resolve sets the final state and appends items.
func (r *Result) Resolve(state TriState, items ...Item) {
	r.Matched = state
	r.Items = append(r.Items, items...)
}

// ResultsMap is the memoization store of one evaluation, keyed by criterion
// identity.
//
// A template is built once per filter; Copy yields an independent working
// map with fresh results and the same keys.
type ResultsMap map[ID]*Result

// NewResultsMap returns an empty map.
func NewResultsMap() ResultsMap {
	return make(ResultsMap)
}

// Create inserts a fresh result for id and reports whether it was added.
// False means id was already present, so a traversal can stop recursing.
func (m ResultsMap) Create(id ID) bool {
	if _, ok := m[id]; ok {
		return false
	}
	m[id] = &Result{}
	return true
}

// Get returns the result for id, or nil.
func (m ResultsMap) Get(id ID) *Result {
	return m[id]
}

// Matched returns the state stored for id. Missing entries are Unknown.
func (m ResultsMap) Matched(id ID) TriState {
	if r, ok := m[id]; ok {
		return r.Matched
	}
	return Unknown
}

// Claim hands the result for id to a single collector.
//
// The first claim returns the result; later claims return false. The entry
// stays in the map so criteria evaluated afterwards still see its state.
func (m ResultsMap) Claim(id ID) (*Result, bool) {
	r, ok := m[id]
	if !ok || r.claimed {
		return nil, false
	}
	r.claimed = true
	return r, true
}

// Claimed reports whether the result for id has been claimed.
func (m ResultsMap) Claimed(id ID) bool {
	r, ok := m[id]
	return ok && r.claimed
}

// Copy returns a map with the same keys and fresh results.
func (m ResultsMap) Copy() ResultsMap {
	out := make(ResultsMap, len(m))
	for id := range m {
		out[id] = &Result{}
	}
	return out
}

// Len returns the number of entries.
func (m ResultsMap) Len() int {
	return len(m)
}

// Keys returns the ids in ascending order.
func (m ResultsMap) Keys() []ID {
	keys := make([]ID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
