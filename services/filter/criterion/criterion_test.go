// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package criterion_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
	"github.com/AleutianAI/SeedFilter/services/filter/world/worldtest"
)

// probe resolves to outcome after examining regions fragments along +x.
type probe struct {
	id      criterion.ID
	outcome criterion.TriState
	regions int
	checks  int
}

func newProbe(t *criterion.Tree, outcome criterion.TriState, regions int) *probe {
	var p *probe
	t.Custom(func(id criterion.ID) criterion.Criterion {
		p = &probe{id: id, outcome: outcome, regions: regions}
		return p
	})
	return p
}

func (p *probe) ID() criterion.ID                { return p.id }
func (p *probe) Children() []criterion.Criterion { return nil }
func (p *probe) MaxRegions() int                 { return p.regions }
func (p *probe) String() string                  { return "probe" }

func (p *probe) NextRegionToCheck(results criterion.ResultsMap) (coords.Box, bool) {
	r := results.Get(p.id)
	if r.Matched.Known() {
		return coords.Box{}, false
	}
	return coords.FragmentAt(int64(r.Cursor), 0), true
}

func (p *probe) CheckRegion(_ context.Context, results criterion.ResultsMap, _ *world.World, _ coords.Coordinates, _ coords.Box) (criterion.TriState, error) {
	p.checks++
	r := results.Get(p.id)
	r.Cursor++
	if r.Cursor >= p.regions {
		r.Resolve(p.outcome, criterion.Item{Kind: "probe", Pos: coords.New(int64(p.id), 0)})
	}
	return r.Matched, nil
}

func template(roots ...criterion.Criterion) criterion.ResultsMap {
	m := criterion.NewResultsMap()
	var fill func(c criterion.Criterion)
	fill = func(c criterion.Criterion) {
		if !m.Create(c.ID()) {
			return
		}
		for _, child := range c.Children() {
			fill(child)
		}
	}
	for _, r := range roots {
		fill(r)
	}
	return m
}

// evaluate drives c to a decision the way the engine does and returns the
// number of regions examined.
func evaluate(t *testing.T, c criterion.Criterion, results criterion.ResultsMap, w *world.World, origin coords.Coordinates) (criterion.TriState, int) {
	t.Helper()
	ctx := context.Background()
	checked := 0
	for {
		region, ok := c.NextRegionToCheck(results)
		if !ok {
			break
		}
		require.NoError(t, w.MoveCacheTo(ctx, region.Move(origin)))
		_, err := c.CheckRegion(ctx, results, w, origin, region)
		require.NoError(t, err)
		checked++
	}
	return results.Matched(c.ID()), checked
}

func cachedWorld(t *testing.T, src world.Source) *world.World {
	t.Helper()
	w, err := world.Cached(src)
	require.NoError(t, err)
	return w
}

func TestTriState(t *testing.T) {
	assert.Equal(t, criterion.True, criterion.FromBool(true))
	assert.Equal(t, criterion.False, criterion.FromBool(false))
	assert.False(t, criterion.Unknown.Known())
	assert.True(t, criterion.False.Known())
	assert.Equal(t, "unknown", criterion.Unknown.String())

	b, err := criterion.True.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"true"`, string(b))
}

func TestResultsMap(t *testing.T) {
	m := criterion.NewResultsMap()
	assert.True(t, m.Create(3))
	assert.True(t, m.Create(1))
	assert.False(t, m.Create(3))
	assert.Equal(t, []criterion.ID{1, 3}, m.Keys())

	m.Get(3).Resolve(criterion.True, criterion.Item{Kind: "village"})
	m.Get(3).Cursor = 4

	cp := m.Copy()
	assert.Equal(t, m.Keys(), cp.Keys())
	assert.Equal(t, criterion.Unknown, cp.Matched(3))
	assert.Empty(t, cp.Get(3).Items)
	assert.Zero(t, cp.Get(3).Cursor)
	assert.Equal(t, criterion.True, m.Matched(3), "copy must not touch the source")

	r, ok := m.Claim(3)
	require.True(t, ok)
	assert.Len(t, r.Items, 1)
	_, ok = m.Claim(3)
	assert.False(t, ok)
	assert.True(t, m.Claimed(3))
	assert.Equal(t, criterion.True, m.Matched(3), "claimed entries keep their state")

	_, ok = m.Claim(99)
	assert.False(t, ok)
	assert.Equal(t, criterion.Unknown, m.Matched(99))
}

func TestTree_Construction(t *testing.T) {
	t.Run("assigns sequential ids", func(t *testing.T) {
		tr := criterion.NewTree()
		a := tr.Structure(world.StructureVillage, 1)
		b := tr.Biome(oracle.NewBiomeSet(oracle.BiomeDesert), 0, 0)
		and := tr.And(a, b)
		require.NoError(t, tr.Err())
		assert.Equal(t, criterion.ID(0), a.ID())
		assert.Equal(t, criterion.ID(1), b.ID())
		assert.Equal(t, criterion.ID(2), and.ID())
		assert.Equal(t, 3, tr.Len())
		assert.True(t, tr.Owns(and))
		assert.Equal(t, 1, b.(*criterion.Biome).MinCells)
	})

	t.Run("rejects foreign children", func(t *testing.T) {
		other := criterion.NewTree()
		foreign := other.Structure(world.StructureVillage, 1)

		tr := criterion.NewTree()
		assert.Nil(t, tr.Or(foreign))
		assert.ErrorIs(t, tr.Err(), criterion.ErrForeignCriterion)
	})

	t.Run("rejects nil children", func(t *testing.T) {
		tr := criterion.NewTree()
		assert.Nil(t, tr.And(nil))
		assert.ErrorIs(t, tr.Err(), criterion.ErrForeignCriterion)
	})

	t.Run("rejects nodes after seal", func(t *testing.T) {
		tr := criterion.NewTree()
		tr.Structure(world.StructureVillage, 1)
		tr.Seal()
		assert.Nil(t, tr.Structure(world.StructureMansion, 1))
		assert.ErrorIs(t, tr.Err(), criterion.ErrTreeSealed)
		assert.True(t, tr.Sealed())
	})

	t.Run("rejects invalid leaves", func(t *testing.T) {
		tr := criterion.NewTree()
		assert.Nil(t, tr.Structure("", 1))
		assert.Nil(t, tr.Biome(0, 1, 1))
		assert.Nil(t, tr.Structure(world.StructureVillage, criterion.MaxRadius+1))
		err := tr.Err()
		assert.ErrorIs(t, err, criterion.ErrInvalidLeaf)
		var ne *criterion.NodeError
		assert.ErrorAs(t, err, &ne)
	})

	t.Run("custom must report its id", func(t *testing.T) {
		tr := criterion.NewTree()
		tr.Custom(func(id criterion.ID) criterion.Criterion {
			return &probe{id: id + 1}
		})
		assert.ErrorIs(t, tr.Err(), criterion.ErrInvalidLeaf)
	})
}

func TestStructure(t *testing.T) {
	t.Run("finds instance in spiral order", func(t *testing.T) {
		// fragment (1, 0) is the fifth entry of the radius 1 spiral
		src := worldtest.NewSource(1).WithStructures(world.StructureVillage,
			coords.New(700, 20), coords.New(900, 400), coords.New(-5000, 0))
		tr := criterion.NewTree()
		c := tr.Structure(world.StructureVillage, 1)
		results := template(c)

		state, checked := evaluate(t, c, results, cachedWorld(t, src), coords.Origin())
		assert.Equal(t, criterion.True, state)
		assert.Equal(t, 5, checked)
		assert.Equal(t, []criterion.Item{
			{Kind: "village", Pos: coords.New(700, 20)},
			{Kind: "village", Pos: coords.New(900, 400)},
		}, results.Get(c.ID()).Items)
	})

	t.Run("search is translated by the origin", func(t *testing.T) {
		src := worldtest.NewSource(1).WithStructures(world.StructureVillage, coords.New(10_010, 10_010))
		tr := criterion.NewTree()
		c := tr.Structure(world.StructureVillage, 0)
		results := template(c)

		state, checked := evaluate(t, c, results, cachedWorld(t, src), coords.New(10_000, 10_000))
		assert.Equal(t, criterion.True, state)
		assert.Equal(t, 1, checked)
	})

	t.Run("exhaustion resolves false", func(t *testing.T) {
		src := worldtest.NewSource(1).WithStructures(world.StructureVillage)
		tr := criterion.NewTree()
		c := tr.Structure(world.StructureVillage, 1)
		results := template(c)

		state, checked := evaluate(t, c, results, cachedWorld(t, src), coords.Origin())
		assert.Equal(t, criterion.False, state)
		assert.Equal(t, 9, checked)
		assert.Equal(t, 9, criterion.WorstCaseRegions(c))
	})

	t.Run("kind the world does not generate resolves false", func(t *testing.T) {
		src := worldtest.NewSource(1).WithStructures(world.StructureVillage, coords.New(1, 1))
		tr := criterion.NewTree()
		c := tr.Structure(world.StructureMansion, 2)
		results := template(c)

		state, checked := evaluate(t, c, results, cachedWorld(t, src), coords.Origin())
		assert.Equal(t, criterion.False, state)
		assert.Equal(t, 1, checked)
		assert.Empty(t, results.Get(c.ID()).Items)
	})

	t.Run("negative radius is false without any region", func(t *testing.T) {
		tr := criterion.NewTree()
		c := tr.Structure(world.StructureVillage, -1)
		results := template(c)

		_, ok := c.NextRegionToCheck(results)
		assert.False(t, ok)
		assert.Equal(t, criterion.False, results.Matched(c.ID()))
		assert.Equal(t, 0, criterion.WorstCaseRegions(c))
	})
}

func TestBiome(t *testing.T) {
	// cells with gx >= 200 are desert: blocks from x=800 on, i.e. fragment 1
	src := worldtest.NewSource(1)
	src.Oracle.Fill = func(gx, gz int64) oracle.Biome {
		if gx >= 200 {
			return oracle.BiomeDesert
		}
		return oracle.BiomePlains
	}

	t.Run("reports the first matching cell", func(t *testing.T) {
		tr := criterion.NewTree()
		c := tr.Biome(oracle.NewBiomeSet(oracle.BiomeDesert, oracle.BiomeBadlands), 1, 1)
		results := template(c)

		state, _ := evaluate(t, c, results, cachedWorld(t, src), coords.Origin())
		require.Equal(t, criterion.True, state)
		assert.Equal(t, []criterion.Item{{Kind: "desert", Pos: coords.New(800, -512)}}, results.Get(c.ID()).Items)
	})

	t.Run("min cells not reached", func(t *testing.T) {
		tr := criterion.NewTree()
		// a fragment holds 128*128 quarter cells, fragment (1,*) only 56 columns of desert
		c := tr.Biome(oracle.NewBiomeSet(oracle.BiomeDesert), 1, 56*128+1)
		results := template(c)

		state, checked := evaluate(t, c, results, cachedWorld(t, src), coords.Origin())
		assert.Equal(t, criterion.False, state)
		assert.Equal(t, 9, checked)
	})
}

func TestAnd(t *testing.T) {
	t.Run("short circuits on first false child", func(t *testing.T) {
		tr := criterion.NewTree()
		first := newProbe(tr, criterion.False, 2)
		second := newProbe(tr, criterion.True, 1)
		and := tr.And(first, second)
		require.NoError(t, tr.Err())

		results := template(and)
		state, checked := evaluate(t, and, results, cachedWorld(t, worldtest.NewSource(1)), coords.Origin())
		assert.Equal(t, criterion.False, state)
		assert.Equal(t, 2, checked)
		assert.Equal(t, 2, first.checks)
		assert.Zero(t, second.checks)
	})

	t.Run("true when every child is", func(t *testing.T) {
		tr := criterion.NewTree()
		a := newProbe(tr, criterion.True, 1)
		b := newProbe(tr, criterion.True, 3)
		and := tr.And(a, b)

		results := template(and)
		state, checked := evaluate(t, and, results, cachedWorld(t, worldtest.NewSource(1)), coords.Origin())
		assert.Equal(t, criterion.True, state)
		assert.Equal(t, 4, checked)
		assert.Equal(t, 4, criterion.WorstCaseRegions(and))
	})

	t.Run("empty is true", func(t *testing.T) {
		tr := criterion.NewTree()
		and := tr.And()
		results := template(and)
		_, ok := and.NextRegionToCheck(results)
		assert.False(t, ok)
		assert.Equal(t, criterion.True, results.Matched(and.ID()))
	})
}

func TestOr(t *testing.T) {
	t.Run("short circuits on first true child", func(t *testing.T) {
		tr := criterion.NewTree()
		first := newProbe(tr, criterion.True, 1)
		second := newProbe(tr, criterion.False, 3)
		or := tr.Or(first, second)

		results := template(or)
		state, _ := evaluate(t, or, results, cachedWorld(t, worldtest.NewSource(1)), coords.Origin())
		assert.Equal(t, criterion.True, state)
		assert.Equal(t, 1, first.checks)
		assert.Zero(t, second.checks)
	})

	t.Run("falls through exhausted children", func(t *testing.T) {
		tr := criterion.NewTree()
		a := newProbe(tr, criterion.False, 2)
		b := newProbe(tr, criterion.True, 3)
		or := tr.Or(a, b)

		results := template(or)
		state, checked := evaluate(t, or, results, cachedWorld(t, worldtest.NewSource(1)), coords.Origin())
		assert.Equal(t, criterion.True, state)
		assert.Equal(t, 5, checked)
		assert.Equal(t, 2, a.checks)
		assert.Equal(t, 3, b.checks)
	})

	t.Run("child resolved earlier counts immediately", func(t *testing.T) {
		tr := criterion.NewTree()
		shared := newProbe(tr, criterion.True, 2)
		other := newProbe(tr, criterion.True, 2)
		or := tr.Or(other, shared)

		results := template(shared, or)
		w := cachedWorld(t, worldtest.NewSource(1))
		state, _ := evaluate(t, shared, results, w, coords.Origin())
		require.Equal(t, criterion.True, state)
		require.Equal(t, 2, shared.checks)

		state, checked := evaluate(t, or, results, w, coords.Origin())
		assert.Equal(t, criterion.True, state)
		assert.Zero(t, checked)
		assert.Zero(t, other.checks)
		assert.Equal(t, 2, shared.checks)
	})

	t.Run("nested combinators delegate through", func(t *testing.T) {
		tr := criterion.NewTree()
		a := newProbe(tr, criterion.False, 1)
		b := newProbe(tr, criterion.True, 1)
		c := newProbe(tr, criterion.True, 1)
		root := tr.And(tr.Or(a, b), c)

		results := template(root)
		state, checked := evaluate(t, root, results, cachedWorld(t, worldtest.NewSource(1)), coords.Origin())
		assert.Equal(t, criterion.True, state)
		assert.Equal(t, 3, checked)
		assert.Equal(t, "and(or(probe, probe), probe)", root.String())
	})
}
