// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the scanner's instruments.
//
// Description:
//
//	Counts seeds scanned and matched, records per-seed match latency, and
//	counts scan errors by stage. All metrics use the "seedfilter_" prefix.
//	The engine and the tile cache record their own instruments.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// SeedsScanned counts seeds evaluated, labelled by outcome.
	SeedsScanned metric.Int64Counter

	// SeedMatches counts seeds accepted by the filter.
	SeedMatches metric.Int64Counter

	// MatchDuration records per-seed evaluation time in seconds.
	MatchDuration metric.Float64Histogram

	// ScanErrors counts failures, labelled by stage.
	ScanErrors metric.Int64Counter
}

// NewMetrics registers the scanner instruments with meter.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance.
//	error - Non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SeedsScanned, err = meter.Int64Counter(
		"seedfilter_seeds_scanned_total",
		metric.WithDescription("Seeds evaluated by the scanner"),
		metric.WithUnit("{seed}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create seeds_scanned_total: %w", err)
	}

	m.SeedMatches, err = meter.Int64Counter(
		"seedfilter_seed_matches_total",
		metric.WithDescription("Seeds accepted by the filter"),
		metric.WithUnit("{seed}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create seed_matches_total: %w", err)
	}

	m.MatchDuration, err = meter.Float64Histogram(
		"seedfilter_match_duration_seconds",
		metric.WithDescription("Per-seed evaluation time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create match_duration: %w", err)
	}

	m.ScanErrors, err = meter.Int64Counter(
		"seedfilter_scan_errors_total",
		metric.WithDescription("Scanner failures by stage"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scan_errors_total: %w", err)
	}

	return m, nil
}

// RecordSeed records one evaluated seed. A nil receiver is a no-op.
func (m *Metrics) RecordSeed(ctx context.Context, matched bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if matched {
		outcome = "matched"
		m.SeedMatches.Add(ctx, 1)
	}
	m.SeedsScanned.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.MatchDuration.Record(ctx, d.Seconds())
}

// RecordError counts a failure at stage ("source", "match", "sink").
// A nil receiver is a no-op.
func (m *Metrics) RecordError(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.ScanErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
