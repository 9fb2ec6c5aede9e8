// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

// Package-level tracer and meter for oracle operations.
var (
	tracer = otel.Tracer("seedfilter.oracle")
	meter  = otel.Meter("seedfilter.oracle")
)

// Metrics for tile cache and fetch operations.
var (
	tileHits       metric.Int64Counter
	tileMisses     metric.Int64Counter
	tileEvictions  metric.Int64Counter
	tileGetLatency metric.Float64Histogram
	repositions    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		tileHits, err = meter.Int64Counter(
			"tilecache_hits_total",
			metric.WithDescription("Total number of biome tile cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tileMisses, err = meter.Int64Counter(
			"tilecache_misses_total",
			metric.WithDescription("Total number of biome tile cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tileEvictions, err = meter.Int64Counter(
			"tilecache_evictions_total",
			metric.WithDescription("Total number of biome tiles evicted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tileGetLatency, err = meter.Float64Histogram(
			"tilecache_get_duration_seconds",
			metric.WithDescription("Duration of tile cache lookups including fetches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		repositions, err = meter.Int64Counter(
			"oracle_cache_repositions_total",
			metric.WithDescription("Total number of cached window repositions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordTileHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	tileHits.Add(ctx, 1)
}

func recordTileMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	tileMisses.Add(ctx, 1)
}

func recordTileEviction(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	tileEvictions.Add(ctx, 1)
}

func recordTileLatency(ctx context.Context, d time.Duration, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	tileGetLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("hit", hit)))
}

func recordReposition(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	repositions.Add(ctx, 1)
}

// startFetchSpan creates a span for one oracle fetch.
func startFetchSpan(ctx context.Context, seed int64, box coords.Box) (context.Context, trace.Span) {
	return tracer.Start(ctx, "CachedBiomeDataOracle.Fetch",
		trace.WithAttributes(
			attribute.Int64("world.seed", seed),
			attribute.Int64("box.x", box.Corner.X),
			attribute.Int64("box.z", box.Corner.Z),
			attribute.Int64("box.width", box.Width),
		),
	)
}
