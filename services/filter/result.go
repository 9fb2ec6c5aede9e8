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
	"time"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// NoGoal is the item bucket of the mandatory criterion.
const NoGoal = ""

// Result describes a world accepted by a WorldFilter.
type Result struct {
	// World is the source that was matched.
	World world.Source `json:"-"`

	// Seed is the seed of World.
	Seed int64 `json:"seed"`

	// Origin is the point every criterion region was translated by.
	Origin coords.Coordinates `json:"origin"`

	// Goals lists the satisfied goals in declaration order.
	Goals []string `json:"goals"`

	// Items maps a goal name, or NoGoal for the mandatory criterion, to the
	// items collected under it.
	Items map[string][]criterion.Item `json:"items"`

	Stats Stats `json:"stats"`
}

// Stats describes the cost of one evaluation.
type Stats struct {
	// Repositions is the number of biome window moves. Returning to an
	// earlier window counts again.
	Repositions int `json:"repositions"`

	// Duration is the wall time of Match.
	Duration time.Duration `json:"duration_ns"`
}

func newResult(src world.Source, origin coords.Coordinates) *Result {
	return &Result{
		World:  src,
		Seed:   src.Seed(),
		Origin: origin,
		Goals:  make([]string, 0),
		Items:  make(map[string][]criterion.Item),
	}
}

// Satisfied reports whether goal was satisfied.
func (r *Result) Satisfied(goal string) bool {
	for _, g := range r.Goals {
		if g == goal {
			return true
		}
	}
	return false
}

// ItemsFor returns the items collected under goal.
func (r *Result) ItemsFor(goal string) []criterion.Item {
	return r.Items[goal]
}

func (r *Result) addItems(goal string, items []criterion.Item) {
	if len(items) == 0 {
		return
	}
	r.Items[goal] = append(r.Items[goal], items...)
}
