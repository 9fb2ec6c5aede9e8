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
	"context"
	"strings"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// And is satisfied when every child is.
//
// Children are evaluated in order and the first False child decides the
// outcome; later children are never examined.
type And struct {
	id       ID
	children []Criterion
}

// ID implements Criterion.
func (c *And) ID() ID { return c.id }

// Children implements Criterion.
func (c *And) Children() []Criterion { return c.children }

// NextRegionToCheck implements Criterion.
func (c *And) NextRegionToCheck(results ResultsMap) (coords.Box, bool) {
	return nextOf(results, c.id, c.children, False)
}

// CheckRegion implements Criterion.
func (c *And) CheckRegion(ctx context.Context, results ResultsMap, w *world.World, origin coords.Coordinates, region coords.Box) (TriState, error) {
	return checkOf(ctx, results, c.id, c.children, False, w, origin, region)
}

func (c *And) String() string {
	return join("and", c.children)
}

// Or is satisfied when any child is.
//
// Children are evaluated in order and the first True child decides the
// outcome; later children are never examined.
type Or struct {
	id       ID
	children []Criterion
}

// ID implements Criterion.
func (c *Or) ID() ID { return c.id }

// Children implements Criterion.
func (c *Or) Children() []Criterion { return c.children }

// NextRegionToCheck implements Criterion.
func (c *Or) NextRegionToCheck(results ResultsMap) (coords.Box, bool) {
	return nextOf(results, c.id, c.children, True)
}

// CheckRegion implements Criterion.
func (c *Or) CheckRegion(ctx context.Context, results ResultsMap, w *world.World, origin coords.Coordinates, region coords.Box) (TriState, error) {
	return checkOf(ctx, results, c.id, c.children, True, w, origin, region)
}

func (c *Or) String() string {
	return join("or", c.children)
}

// settle derives a combinator's state from its children and stores it.
//
// decisive is the child state that decides the combinator on its own
// (False for And, True for Or). When no child is decisive and none is
// Unknown, the combinator takes the opposite state.
func settle(results ResultsMap, id ID, children []Criterion, decisive TriState) TriState {
	r := results.Get(id)
	if r != nil && r.Matched.Known() {
		return r.Matched
	}
	state := opposite(decisive)
	for _, child := range children {
		m := results.Matched(child.ID())
		if m == decisive {
			state = decisive
			break
		}
		if m == Unknown {
			state = Unknown
		}
	}
	if r != nil {
		r.Matched = state
	}
	return state
}

// pending returns the first child whose state is still Unknown.
func pending(results ResultsMap, children []Criterion) Criterion {
	for _, child := range children {
		if results.Matched(child.ID()) == Unknown {
			return child
		}
	}
	return nil
}

func nextOf(results ResultsMap, id ID, children []Criterion, decisive TriState) (coords.Box, bool) {
	for {
		if settle(results, id, children, decisive).Known() {
			return coords.Box{}, false
		}
		child := pending(results, children)
		if child == nil {
			return coords.Box{}, false
		}
		if region, ok := child.NextRegionToCheck(results); ok {
			return region, true
		}
		// A child may resolve itself without asking for a region. One that
		// stays Unknown is broken; report done and let the caller notice.
		if !results.Matched(child.ID()).Known() {
			return coords.Box{}, false
		}
	}
}

func checkOf(ctx context.Context, results ResultsMap, id ID, children []Criterion, decisive TriState, w *world.World, origin coords.Coordinates, region coords.Box) (TriState, error) {
	if state := settle(results, id, children, decisive); state.Known() {
		return state, nil
	}
	child := pending(results, children)
	if child == nil {
		return settle(results, id, children, decisive), nil
	}
	if _, err := child.CheckRegion(ctx, results, w, origin, region); err != nil {
		return Unknown, err
	}
	return settle(results, id, children, decisive), nil
}

func opposite(t TriState) TriState {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

func join(op string, children []Criterion) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}
