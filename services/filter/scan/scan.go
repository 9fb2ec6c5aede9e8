// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan runs a WorldFilter over a range of seeds.
//
// A Scanner feeds seeds from a producer goroutine to a fixed pool of
// workers. Each worker opens the world for its seed, matches it, and hands
// accepted worlds to a Sink. The filter can be swapped while a scan runs,
// which is how a reloaded filter file takes effect without restarting.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/telemetry"
	"github.com/AleutianAI/SeedFilter/services/filter/world"
)

var tracer = otel.Tracer("seedfilter.scan")

// DefaultProgressInterval is how often a running scan logs its progress.
const DefaultProgressInterval = 5 * time.Second

// SourceFunc opens the world of a seed.
type SourceFunc func(seed int64) (world.Source, error)

// SeedRange is the half-open interval [From, To).
type SeedRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Len returns the number of seeds in r, or 0 if r is empty.
func (r SeedRange) Len() uint64 {
	if r.From >= r.To {
		return 0
	}
	return uint64(r.To) - uint64(r.From)
}

// Validate returns ErrEmptyRange if r holds no seeds.
func (r SeedRange) Validate() error {
	if r.From >= r.To {
		return fmt.Errorf("%w: [%d, %d)", ErrEmptyRange, r.From, r.To)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	RunID string `json:"run_id"`

	// Scanned counts seeds that were accepted or rejected.
	Scanned int64 `json:"scanned"`

	// Matched counts accepted seeds.
	Matched int64 `json:"matched"`

	// Failed counts seeds whose world could not be opened or matched.
	Failed int64 `json:"failed"`

	Duration time.Duration `json:"duration_ns"`
}

// SeedsPerSecond returns the scan throughput.
func (s Stats) SeedsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Scanned) / s.Duration.Seconds()
}

type options struct {
	workers  int
	sink     Sink
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	progress time.Duration
	limiter  *rate.Limiter
	failFast bool
}

// Option configures a Scanner.
type Option func(*options)

// WithWorkers sets the number of concurrent matches. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSink sets where matches go. Default: discard.
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithLogger sets the logger for progress and per-seed failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records per-seed outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithProgressInterval sets how often progress is logged. Zero disables it.
func WithProgressInterval(d time.Duration) Option {
	return func(o *options) {
		o.progress = d
	}
}

// WithRateLimit caps the number of seeds issued per second.
func WithRateLimit(perSecond float64) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithFailFast makes the first failing seed abort the run. By default a
// failing seed is logged, counted, and skipped.
func WithFailFast(enabled bool) Option {
	return func(o *options) {
		o.failFast = enabled
	}
}

// Scanner evaluates a filter over seed ranges.
//
// Thread Safety: Run may be called concurrently; each call is an
// independent run sharing the current filter. SetFilter is safe at any time.
type Scanner struct {
	filter    atomic.Pointer[filter.WorldFilter]
	newSource SourceFunc
	opts      options
}

// NewScanner creates a Scanner.
//
// Inputs:
//
//	f - The filter to apply. Must not be nil.
//	newSource - Opens the world of a seed. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Scanner - The scanner.
//	error - ErrNilFilter or ErrNilSourceFunc.
func NewScanner(f *filter.WorldFilter, newSource SourceFunc, opts ...Option) (*Scanner, error) {
	if f == nil {
		return nil, ErrNilFilter
	}
	if newSource == nil {
		return nil, ErrNilSourceFunc
	}

	o := options{
		workers:  runtime.GOMAXPROCS(0),
		logger:   slog.Default(),
		progress: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scanner{newSource: newSource, opts: o}
	s.filter.Store(f)
	return s, nil
}

// Filter returns the filter new seeds are matched against.
func (s *Scanner) Filter() *filter.WorldFilter {
	return s.filter.Load()
}

// SetFilter replaces the filter. Seeds already being matched finish with
// the filter they started with.
func (s *Scanner) SetFilter(f *filter.WorldFilter) error {
	if f == nil {
		return ErrNilFilter
	}
	s.filter.Store(f)
	return nil
}

// Run scans every seed in r.
//
// Description:
//
//	A producer issues seeds in ascending order to the workers. Each worker
//	opens the seed's world, matches it against the current filter, and
//	passes accepted worlds to the sink one at a time. Matches therefore
//	reach the sink in completion order, not seed order.
//
//	Cancelling ctx stops the producer. Seeds already handed to a worker
//	are matched to completion and, if accepted, still reach the sink.
//
// Inputs:
//
//	ctx - Cancellation for the run.
//	r - The seeds to scan. Must not be empty.
//
// Outputs:
//
//	Stats - Counts for every seed that was evaluated, including on error.
//	error - ErrEmptyRange, a sink failure, the first seed failure under
//	  WithFailFast, or ctx.Err() if the run was cancelled.
func (s *Scanner) Run(ctx context.Context, r SeedRange) (Stats, error) {
	if err := r.Validate(); err != nil {
		return Stats{}, err
	}

	runID := uuid.NewString()
	start := time.Now()
	logger := s.opts.logger.With(slog.String("run_id", runID))

	ctx, span := tracer.Start(ctx, "Scanner.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.run_id", runID),
		attribute.Int64("scan.from", r.From),
		attribute.Int64("scan.to", r.To),
		attribute.Int("scan.workers", s.opts.workers),
	)

	run := &run{
		scanner: s,
		id:      runID,
		logger:  logger,
	}
	if s.opts.progress > 0 {
		run.progress = &rate.Sometimes{Interval: s.opts.progress}
	}

	logger.Info("scan started",
		slog.Int64("from", r.From),
		slog.Int64("to", r.To),
		slog.Int("workers", s.opts.workers))

	seeds := make(chan int64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(seeds)
		for seed := r.From; seed < r.To; seed++ {
			if s.opts.limiter != nil {
				if err := s.opts.limiter.Wait(gctx); err != nil {
					return nil
				}
			}
			if gctx.Err() != nil {
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case seeds <- seed:
			}
		}
		return nil
	})

	for i := 0; i < s.opts.workers; i++ {
		g.Go(func() error {
			// In-flight seeds must not see the cancellation that stopped
			// the producer.
			work := context.WithoutCancel(gctx)
			for seed := range seeds {
				if err := run.evaluate(work, seed); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats := run.stats(time.Since(start))
	span.SetAttributes(
		attribute.Int64("scan.scanned", stats.Scanned),
		attribute.Int64("scan.matched", stats.Matched),
		attribute.Int64("scan.failed", stats.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("scan stopped",
			slog.String("error", err.Error()),
			slog.Int64("scanned", stats.Scanned),
			slog.Int64("matched", stats.Matched))
		return stats, err
	}

	logger.Info("scan finished",
		slog.Int64("scanned", stats.Scanned),
		slog.Int64("matched", stats.Matched),
		slog.Int64("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
		slog.Float64("seeds_per_second", stats.SeedsPerSecond()))
	return stats, nil
}

// run is the state of one Run call.
type run struct {
	scanner  *Scanner
	id       string
	logger   *slog.Logger
	progress *rate.Sometimes

	scanned atomic.Int64
	matched atomic.Int64
	failed  atomic.Int64

	sinkMu sync.Mutex
}

func (r *run) stats(d time.Duration) Stats {
	return Stats{
		RunID:    r.id,
		Scanned:  r.scanned.Load(),
		Matched:  r.matched.Load(),
		Failed:   r.failed.Load(),
		Duration: d,
	}
}

// evaluate matches one seed. A non-nil error aborts the run.
func (r *run) evaluate(ctx context.Context, seed int64) error {
	opts := &r.scanner.opts
	start := time.Now()

	res, err := r.match(ctx, seed)
	if err != nil {
		r.failed.Add(1)
		telemetry.LoggerWithTrace(ctx, r.logger).Warn("seed failed",
			slog.Int64("seed", seed),
			slog.String("error", err.Error()))
		if opts.failFast {
			return err
		}
		return nil
	}

	r.scanned.Add(1)
	opts.metrics.RecordSeed(ctx, res != nil, time.Since(start))
	if res != nil {
		r.matched.Add(1)
		if err := r.put(ctx, res); err != nil {
			opts.metrics.RecordError(ctx, "sink")
			return &SeedError{Seed: seed, Err: fmt.Errorf("sink: %w", err)}
		}
	}

	if r.progress != nil {
		r.progress.Do(func() {
			r.logger.Info("scan progress",
				slog.Int64("last_seed", seed),
				slog.Int64("scanned", r.scanned.Load()),
				slog.Int64("matched", r.matched.Load()),
				slog.Int64("failed", r.failed.Load()))
		})
	}
	return nil
}

func (r *run) match(ctx context.Context, seed int64) (*filter.Result, error) {
	opts := &r.scanner.opts
	src, err := r.scanner.newSource(seed)
	if err != nil {
		opts.metrics.RecordError(ctx, "source")
		return nil, &SeedError{Seed: seed, Err: err}
	}
	res, err := r.scanner.filter.Load().Match(ctx, src)
	if err != nil {
		opts.metrics.RecordError(ctx, "match")
		return nil, err
	}
	return res, nil
}

func (r *run) put(ctx context.Context, res *filter.Result) error {
	sink := r.scanner.opts.sink
	if sink == nil {
		return nil
	}
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	return sink.Put(ctx, r.id, res)
}
