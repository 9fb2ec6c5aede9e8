// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package criterion implements the criterion tree evaluated by the filter
// engine.
//
// A Tree is an arena: every node gets a small stable ID when it is created
// and combinators refer to children that already exist, so the tree is
// acyclic by construction. The same node may appear under several parents
// and several goals; its ID is the memoization key in a ResultsMap.
//
// Criteria never hold evaluation state. Everything that changes while a
// world is evaluated lives in the ResultsMap of that evaluation, which is
// what allows one tree to serve concurrent evaluations.
package criterion

import (
	"context"
	"errors"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// ID identifies a criterion within its Tree.
type ID int

// Criterion is a node of a criterion tree.
//
// Implementations must be pointer types and must keep all per-evaluation
// state in the ResultsMap.
type Criterion interface {
	// ID returns the handle assigned by the owning Tree.
	ID() ID

	// Children returns the child criteria in evaluation order.
	Children() []Criterion

	// NextRegionToCheck returns the next region to examine, relative to the
	// evaluation origin. It returns false once the criterion's result is
	// known.
	NextRegionToCheck(results ResultsMap) (coords.Box, bool)

	// CheckRegion consumes the data of region translated by origin and
	// returns the criterion's state afterwards. The engine has already
	// positioned the world's biome cache on the translated region.
	//
	// The state must be recorded in results before returning, and the
	// returned value must equal results.Matched(ID()); the engine reads
	// decisions from results and fails the match on a mismatch.
	CheckRegion(ctx context.Context, results ResultsMap, w *world.World, origin coords.Coordinates, region coords.Box) (TriState, error)

	// String describes the criterion for logs.
	String() string
}

// Tree owns the criteria of one filter.
//
// Description:
//
//	Tree hands out IDs and records construction errors instead of
//	returning them from every constructor, so nested literals read
//	naturally. Check Err once the tree is assembled. A sealed tree accepts
//	no more nodes.
//
// Thread Safety:
//
//	Tree is NOT safe for concurrent construction. Once sealed it is
//	read-only and may be shared.
//
// Example:
//
//	t := criterion.NewTree()
//	village := t.Structure(world.StructureVillage, 1)
//	match := t.And(village, t.Biome(oracle.NewBiomeSet(oracle.BiomeJungle), 2, 1))
//	if err := t.Err(); err != nil {
//	    return err
//	}
type Tree struct {
	nodes  []Criterion
	sealed bool
	errs   []error
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Custom adds a criterion built by build, which receives the ID to report.
//
// Children returned by the criterion must already belong to the tree.
func (t *Tree) Custom(build func(id ID) Criterion) Criterion {
	if !t.admit("custom") {
		return nil
	}
	id := ID(len(t.nodes))
	c := build(id)
	if c == nil || c.ID() != id {
		t.errs = append(t.errs, &NodeError{Node: "custom", Err: ErrInvalidLeaf})
		return nil
	}
	if !t.checkChildren(c.String(), c.Children()) {
		return nil
	}
	t.nodes = append(t.nodes, c)
	return c
}

// And adds a conjunction of children. An empty And is True.
func (t *Tree) And(children ...Criterion) Criterion {
	if !t.admit("and") || !t.checkChildren("and", children) {
		return nil
	}
	c := &And{id: ID(len(t.nodes)), children: append([]Criterion(nil), children...)}
	t.nodes = append(t.nodes, c)
	return c
}

// Or adds a disjunction of children. An empty Or is False.
func (t *Tree) Or(children ...Criterion) Criterion {
	if !t.admit("or") || !t.checkChildren("or", children) {
		return nil
	}
	c := &Or{id: ID(len(t.nodes)), children: append([]Criterion(nil), children...)}
	t.nodes = append(t.nodes, c)
	return c
}

// Structure adds a leaf satisfied by any instance of kind within radius
// fragments of the origin. A negative radius makes the leaf False.
func (t *Tree) Structure(kind world.StructureKind, radius int) Criterion {
	if !t.admit("structure") {
		return nil
	}
	c := &Structure{id: ID(len(t.nodes)), Kind: kind, Radius: radius}
	if err := c.validate(); err != nil {
		t.errs = append(t.errs, &NodeError{Node: c.String(), Err: err})
		return nil
	}
	c.order = coords.Spiral(radius)
	t.nodes = append(t.nodes, c)
	return c
}

// Len returns the number of criteria created.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the criterion with the given ID, or nil.
func (t *Tree) Node(id ID) Criterion {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Owns reports whether c was created by this tree.
func (t *Tree) Owns(c Criterion) bool {
	if c == nil {
		return false
	}
	return t.Node(c.ID()) == c
}

// Seal marks the tree read-only.
func (t *Tree) Seal() {
	t.sealed = true
}

// Sealed reports whether Seal was called.
func (t *Tree) Sealed() bool {
	return t.sealed
}

// Err returns every construction error recorded so far, joined.
func (t *Tree) Err() error {
	return errors.Join(t.errs...)
}

func (t *Tree) admit(kind string) bool {
	if t.sealed {
		t.errs = append(t.errs, &NodeError{Node: kind, Err: ErrTreeSealed})
		return false
	}
	return true
}

func (t *Tree) checkChildren(parent string, children []Criterion) bool {
	for _, c := range children {
		if !t.Owns(c) {
			t.errs = append(t.errs, &NodeError{Node: parent, Err: ErrForeignCriterion})
			return false
		}
	}
	return true
}

// WorstCaseRegions returns the largest number of regions c can ask to
// examine in one evaluation, or -1 if a custom criterion does not say.
//
// Combinators add nothing beyond their children.
func WorstCaseRegions(c Criterion) int {
	switch n := c.(type) {
	case interface{ MaxRegions() int }:
		return n.MaxRegions()
	case *And, *Or:
		total := 0
		for _, child := range c.Children() {
			w := WorstCaseRegions(child)
			if w < 0 {
				return -1
			}
			total += w
		}
		return total
	default:
		return -1
	}
}
