// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"

	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

// Compile builds a WorldFilter from f.
//
// Description:
//
//	Validates f, builds every goal in declaration order (resolving refs to
//	the criterion of the referenced goal, which may be declared later),
//	then the match criterion. Options are applied after the file's own
//	attribution setting and override it.
//
// Outputs:
//
//	*filter.WorldFilter - Ready for concurrent Match calls.
//	error - ErrInvalidCriterion, ErrUndefinedGoal, ErrGoalCycle or
//	filter.ErrDuplicateGoal, wrapped with the goal or path concerned.
func (f *File) Compile(opts ...filter.Option) (*filter.WorldFilter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{
		tree:     criterion.NewTree(),
		entries:  make(map[string]*GoalEntry, len(f.Goals)),
		built:    make(map[string]criterion.Criterion, len(f.Goals)),
		visiting: make(map[string]bool),
	}
	for i := range f.Goals {
		g := &f.Goals[i]
		if _, dup := c.entries[g.Name]; dup {
			return nil, &filter.GoalError{Goal: g.Name, Err: filter.ErrDuplicateGoal}
		}
		c.entries[g.Name] = g
	}

	b := filter.NewBuilder(c.tree)
	for _, g := range f.Goals {
		built, err := c.goal(g.Name)
		if err != nil {
			return nil, err
		}
		b.Goal(g.Name, built)
	}

	match, err := c.node(f.Match, "match")
	if err != nil {
		return nil, err
	}
	b.Match(match)
	if f.Center != nil {
		b.WithCenter(*f.Center)
	}

	all := make([]filter.Option, 0, len(opts)+1)
	if f.Attribution == filter.AttributeEveryGoal.String() {
		all = append(all, filter.WithItemAttribution(filter.AttributeEveryGoal))
	}
	all = append(all, opts...)
	return b.Build(all...)
}

type compiler struct {
	tree     *criterion.Tree
	entries  map[string]*GoalEntry
	built    map[string]criterion.Criterion
	visiting map[string]bool
}

func (c *compiler) goal(name string) (criterion.Criterion, error) {
	if built, ok := c.built[name]; ok {
		return built, nil
	}
	entry, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUndefinedGoal, name)
	}
	if c.visiting[name] {
		return nil, &filter.GoalError{Goal: name, Err: ErrGoalCycle}
	}
	c.visiting[name] = true
	defer delete(c.visiting, name)

	built, err := c.node(entry.Criterion, "goals."+name)
	if err != nil {
		return nil, err
	}
	c.built[name] = built
	return built, nil
}

func (c *compiler) node(n *Node, path string) (criterion.Criterion, error) {
	switch {
	case n.Ref != "":
		built, err := c.goal(n.Ref)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return built, nil

	case n.And != nil || n.Or != nil:
		children := n.And
		op := "and"
		if n.Or != nil {
			children, op = n.Or, "or"
		}
		built := make([]criterion.Criterion, 0, len(children))
		for i, child := range children {
			cc, err := c.node(child, fmt.Sprintf("%s.%s[%d]", path, op, i))
			if err != nil {
				return nil, err
			}
			built = append(built, cc)
		}
		if op == "and" {
			return c.checked(c.tree.And(built...), path)
		}
		return c.checked(c.tree.Or(built...), path)

	case n.Structure != nil:
		kind, err := world.ParseStructureKind(n.Structure.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s.structure: %w: %v", path, ErrInvalidCriterion, err)
		}
		return c.checked(c.tree.Structure(kind, n.Structure.Radius), path)

	case n.Biome != nil:
		var set oracle.BiomeSet
		for _, name := range n.Biome.Biomes {
			b, err := oracle.ParseBiome(name)
			if err != nil {
				return nil, fmt.Errorf("%s.biome: %w: %v", path, ErrInvalidCriterion, err)
			}
			set |= oracle.NewBiomeSet(b)
		}
		return c.checked(c.tree.Biome(set, n.Biome.Radius, n.Biome.MinCells), path)

	default:
		return nil, fmt.Errorf("%s: %w: empty node", path, ErrInvalidCriterion)
	}
}

// checked converts a nil node from the tree into its recorded error.
func (c *compiler) checked(built criterion.Criterion, path string) (criterion.Criterion, error) {
	if built == nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidCriterion, c.tree.Err())
	}
	return built, nil
}
