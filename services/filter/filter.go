// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter implements the criterion satisfaction engine.
//
// A WorldFilter holds one mandatory criterion and any number of named
// goals drawn from a single criterion.Tree. Match decides whether a world
// satisfies the mandatory criterion, then evaluates every goal and
// collects the items that satisfied them. Regions are examined lazily in
// the order the criteria ask for them, so a short-circuiting combinator
// saves the biome fetches its skipped children would have needed.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/oracle"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

var (
	tracer = otel.Tracer("seedfilter.filter")
	meter  = otel.Meter("seedfilter.filter")
)

// Attribution decides which goals receive the items of a shared subtree.
type Attribution int

const (
	// AttributeFirstClaim reports a criterion's items under the first goal
	// (in declaration order) that collects them; later goals, and the
	// mandatory bucket, get nothing for it.
	AttributeFirstClaim Attribution = iota

	// AttributeEveryGoal reports a criterion's items under every satisfied
	// goal whose subtree contains it, and under NoGoal when the mandatory
	// criterion contains it.
	AttributeEveryGoal
)

// String implements fmt.Stringer.
func (a Attribution) String() string {
	switch a {
	case AttributeFirstClaim:
		return "first_claim"
	case AttributeEveryGoal:
		return "every_goal"
	default:
		return fmt.Sprintf("attribution(%d)", int(a))
	}
}

// Goal is a named optional criterion.
type Goal struct {
	Name      string
	Criterion criterion.Criterion
}

type options struct {
	attribution Attribution
	logger      *slog.Logger
	tiles       *oracle.TileCache
	resolution  coords.Resolution
}

// Option configures a WorldFilter.
type Option func(*options)

// WithItemAttribution selects how shared subtree items are reported.
func WithItemAttribution(a Attribution) Option {
	return func(o *options) {
		o.attribution = a
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTileCache shares fetched biome grids between evaluations.
func WithTileCache(tiles *oracle.TileCache) Option {
	return func(o *options) {
		o.tiles = tiles
	}
}

// WithResolution sets the resolution biome grids are fetched at.
func WithResolution(res coords.Resolution) Option {
	return func(o *options) {
		if res.Valid() {
			o.resolution = res
		}
	}
}

// Builder assembles a WorldFilter.
//
// Description:
//
//	Builder records configuration errors and reports them from Build.
//	Goals keep their declaration order, which is the order they are
//	evaluated and reported in.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use.
//
// Example:
//
//	t := criterion.NewTree()
//	village := t.Structure(world.StructureVillage, 1)
//	f, err := filter.NewBuilder(t).
//	    Match(village).
//	    Goal("near_temple", t.Structure(world.StructureDesertTemple, 1)).
//	    Build()
type Builder struct {
	tree   *criterion.Tree
	center *coords.Coordinates
	match  criterion.Criterion
	goals  []Goal
	names  map[string]struct{}
	errors []error
}

// NewBuilder creates a builder for criteria of tree.
func NewBuilder(tree *criterion.Tree) *Builder {
	return &Builder{
		tree:  tree,
		names: make(map[string]struct{}),
	}
}

// WithCenter fixes the evaluation origin. Without it the world spawn is
// used, and (0, 0) when the world has no spawn.
func (b *Builder) WithCenter(c coords.Coordinates) *Builder {
	b.center = &c
	return b
}

// Match sets the mandatory criterion.
func (b *Builder) Match(c criterion.Criterion) *Builder {
	b.match = c
	return b
}

// Goal appends a named optional criterion.
func (b *Builder) Goal(name string, c criterion.Criterion) *Builder {
	switch {
	case name == NoGoal || strings.TrimSpace(name) != name:
		b.errors = append(b.errors, &GoalError{Goal: name, Err: ErrInvalidGoalName})
		return b
	case c == nil:
		b.errors = append(b.errors, &GoalError{Goal: name, Err: ErrNilCriterion})
		return b
	}
	if _, exists := b.names[name]; exists {
		b.errors = append(b.errors, &GoalError{Goal: name, Err: ErrDuplicateGoal})
		return b
	}
	b.names[name] = struct{}{}
	b.goals = append(b.goals, Goal{Name: name, Criterion: c})
	return b
}

// Build validates the configuration, seals the tree and builds the
// template results map.
//
// Outputs:
//
//	*WorldFilter - The filter, safe for concurrent Match calls.
//	error - The first configuration error found.
func (b *Builder) Build(opts ...Option) (*WorldFilter, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if b.tree == nil {
		return nil, fmt.Errorf("criterion tree: %w", ErrNilCriterion)
	}
	if err := b.tree.Err(); err != nil {
		return nil, fmt.Errorf("criterion tree: %w", err)
	}
	if b.match == nil {
		return nil, fmt.Errorf("match criterion: %w", ErrNilCriterion)
	}
	if !b.tree.Owns(b.match) {
		return nil, fmt.Errorf("match criterion: %w", criterion.ErrForeignCriterion)
	}
	for _, g := range b.goals {
		if !b.tree.Owns(g.Criterion) {
			return nil, &GoalError{Goal: g.Name, Err: criterion.ErrForeignCriterion}
		}
	}

	o := options{
		attribution: AttributeFirstClaim,
		logger:      slog.Default(),
		resolution:  coords.ResolutionQuarter,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := &WorldFilter{
		tree:     b.tree,
		match:    b.match,
		goals:    append([]Goal(nil), b.goals...),
		template: criterion.NewResultsMap(),
		opts:     o,
		logger:   o.logger.With(slog.String("component", "world_filter")),
	}
	if b.center != nil {
		c := *b.center
		f.center = &c
	}

	f.fill(f.match)
	for _, g := range f.goals {
		f.fill(g.Criterion)
	}
	b.tree.Seal()
	return f, nil
}

// WorldFilter decides which worlds satisfy a criterion tree.
//
// Thread Safety:
//
//	WorldFilter is safe for concurrent use. Every Match call works on its
//	own copy of the results map and its own cached world; the tree and the
//	template are never written after Build.
type WorldFilter struct {
	tree     *criterion.Tree
	center   *coords.Coordinates
	match    criterion.Criterion
	goals    []Goal
	template criterion.ResultsMap
	opts     options
	logger   *slog.Logger

	metricsOnce   sync.Once
	matchLatency  metric.Float64Histogram
	matchOutcomes metric.Int64Counter
	repositions   metric.Int64Histogram
}

// fill inserts c and its subtree, stopping at subtrees already present.
func (f *WorldFilter) fill(c criterion.Criterion) {
	if !f.template.Create(c.ID()) {
		return
	}
	for _, child := range c.Children() {
		f.fill(child)
	}
}

// Goals returns the goal names in declaration order.
func (f *WorldFilter) Goals() []string {
	names := make([]string, len(f.goals))
	for i, g := range f.goals {
		names[i] = g.Name
	}
	return names
}

// Center returns the fixed origin, if one was configured.
func (f *WorldFilter) Center() (coords.Coordinates, bool) {
	if f.center == nil {
		return coords.Coordinates{}, false
	}
	return *f.center, true
}

// MatchCriterion returns the mandatory criterion.
func (f *WorldFilter) MatchCriterion() criterion.Criterion {
	return f.match
}

// Criteria returns the IDs held by the template results map.
func (f *WorldFilter) Criteria() []criterion.ID {
	return f.template.Keys()
}

// Match evaluates src.
//
// Description:
//
//	Resolves the origin, wraps src in a cached world and runs the mandatory
//	criterion to a decision. A rejected world yields (nil, nil). Otherwise
//	every goal is evaluated in declaration order and items are collected
//	per satisfied goal, then for the mandatory criterion under NoGoal.
//	Match runs to a decision once started; ctx is passed to the biome
//	oracle and used for tracing.
//
// Inputs:
//
//	ctx - Context for oracle fetches and tracing.
//	src - The world to evaluate. Must not be nil.
//
// Outputs:
//
//	*Result - The match, or nil if the world was rejected.
//	error - Oracle failures and criterion defects. Never retried here.
func (f *WorldFilter) Match(ctx context.Context, src world.Source) (*Result, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	f.initMetrics()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "WorldFilter.Match")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("world.seed", src.Seed()),
		attribute.Int("filter.goals", len(f.goals)),
	)

	results := f.template.Copy()
	origin := f.origin(src)

	cacheOpts := []oracle.CachedOption{oracle.WithResolution(f.opts.resolution)}
	if f.opts.tiles != nil {
		cacheOpts = append(cacheOpts, oracle.WithTileCache(f.opts.tiles))
	}
	w, err := world.Cached(src, cacheOpts...)
	if err != nil {
		return nil, f.fail(ctx, span, start, err)
	}

	ok, err := f.isValid(ctx, results, w, origin, f.match)
	if err != nil {
		return nil, f.fail(ctx, span, start, fmt.Errorf("seed %d: match criterion: %w", src.Seed(), err))
	}
	if !ok {
		f.record(ctx, start, "rejected", w.Repositions())
		span.SetAttributes(attribute.Bool("filter.matched", false))
		return nil, nil
	}

	res := newResult(src, origin)
	for _, g := range f.goals {
		ok, err := f.isValid(ctx, results, w, origin, g.Criterion)
		if err != nil {
			return nil, f.fail(ctx, span, start, fmt.Errorf("seed %d: %w", src.Seed(), &GoalError{Goal: g.Name, Err: err}))
		}
		if !ok {
			continue
		}
		res.Goals = append(res.Goals, g.Name)
		f.collect(results, res, g.Criterion, g.Name, make(map[criterion.ID]struct{}))
	}
	f.collect(results, res, f.match, NoGoal, make(map[criterion.ID]struct{}))

	res.Stats = Stats{Repositions: w.Repositions(), Duration: time.Since(start)}
	f.record(ctx, start, "matched", w.Repositions())
	span.SetAttributes(
		attribute.Bool("filter.matched", true),
		attribute.Int("filter.goals_satisfied", len(res.Goals)),
		attribute.Int("filter.repositions", res.Stats.Repositions),
	)
	return res, nil
}

// origin returns the fixed center, else the spawn, else (0, 0).
func (f *WorldFilter) origin(src world.Source) coords.Coordinates {
	if f.center != nil {
		return *f.center
	}
	if spawn, ok := src.Spawn(); ok {
		return spawn
	}
	return coords.Origin()
}

// isValid drives c until it reaches a decision.
//
// The cache is repositioned on every region c asks for, in the order it
// asks, before the region is handed to c. A criterion that is already
// decided, e.g. a subtree shared with an earlier goal, examines nothing.
func (f *WorldFilter) isValid(ctx context.Context, results criterion.ResultsMap, w *world.World, origin coords.Coordinates, c criterion.Criterion) (bool, error) {
	for {
		region, ok := c.NextRegionToCheck(results)
		if !ok {
			break
		}
		if err := w.MoveCacheTo(ctx, region.Move(origin)); err != nil {
			return false, err
		}
		state, err := c.CheckRegion(ctx, results, w, origin, region)
		if err != nil {
			return false, err
		}
		if stored := results.Matched(c.ID()); state != stored {
			return false, &CriterionError{
				Criterion: c.String(),
				Err:       fmt.Errorf("%w: returned %s, stored %s", ErrInconsistentCriterion, state, stored),
			}
		}
	}

	switch results.Matched(c.ID()) {
	case criterion.True:
		return true, nil
	case criterion.False:
		return false, nil
	default:
		return false, &CriterionError{Criterion: c.String(), Err: ErrUnresolvedCriterion}
	}
}

// collect moves the items of every True criterion in c's subtree into res
// under goal.
func (f *WorldFilter) collect(results criterion.ResultsMap, res *Result, c criterion.Criterion, goal string, seen map[criterion.ID]struct{}) {
	if _, dup := seen[c.ID()]; dup {
		return
	}
	seen[c.ID()] = struct{}{}

	var r *criterion.Result
	switch f.opts.attribution {
	case AttributeEveryGoal:
		r = results.Get(c.ID())
		if r == nil {
			return
		}
	default:
		claimed, ok := results.Claim(c.ID())
		if !ok {
			if results.Matched(c.ID()) == criterion.True {
				f.logger.Debug("items already attributed to an earlier goal",
					slog.String("goal", goal),
					slog.String("criterion", c.String()),
				)
			}
			return
		}
		r = claimed
	}

	if r.Matched != criterion.True {
		return
	}
	res.addItems(goal, r.Items)
	for _, child := range c.Children() {
		f.collect(results, res, child, goal, seen)
	}
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues evaluating.
func (f *WorldFilter) initMetrics() {
	f.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		f.matchLatency, err = meter.Float64Histogram("filter_match_duration_seconds",
			metric.WithDescription("Time spent evaluating one world"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "match_latency: "+err.Error())
		}

		f.matchOutcomes, err = meter.Int64Counter("filter_matches_total",
			metric.WithDescription("Number of evaluated worlds by outcome"),
		)
		if err != nil {
			initErrors = append(initErrors, "match_outcomes: "+err.Error())
		}

		f.repositions, err = meter.Int64Histogram("filter_cache_repositions",
			metric.WithDescription("Biome window moves per evaluated world"),
		)
		if err != nil {
			initErrors = append(initErrors, "repositions: "+err.Error())
		}

		if len(initErrors) > 0 {
			f.logger.Warn("some filter metrics failed to initialize",
				slog.Any("errors", initErrors),
			)
		}
	})
}

func (f *WorldFilter) record(ctx context.Context, start time.Time, outcome string, repositions int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if f.matchLatency != nil {
		f.matchLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if f.matchOutcomes != nil {
		f.matchOutcomes.Add(ctx, 1, attrs)
	}
	if f.repositions != nil && repositions >= 0 {
		f.repositions.Record(ctx, int64(repositions), attrs)
	}
}

func (f *WorldFilter) fail(ctx context.Context, span trace.Span, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	f.record(ctx, start, "error", -1)
	return err
}
