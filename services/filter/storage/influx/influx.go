// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package influx exports scan matches as InfluxDB points so a long scan can
// be charted next to its metrics.
package influx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/SeedFilter/pkg/validation"
	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/scan"
)

// DefaultMeasurement is the measurement match points are written to.
const DefaultMeasurement = "seed_matches"

var (
	// ErrIncompleteConfig is returned when URL, Org or Bucket is missing.
	// An invalid Measurement fails with validation.ErrInvalidName.
	ErrIncompleteConfig = errors.New("influx: url, org and bucket are required")

	// ErrUnhealthy is returned when the server health check does not pass.
	ErrUnhealthy = errors.New("influx: server not healthy")
)

// Config selects the InfluxDB bucket matches are written to.
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Enabled reports whether any connection setting was given.
func (c Config) Enabled() bool {
	return c.URL != "" || c.Org != "" || c.Bucket != ""
}

func (c Config) validate() error {
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return ErrIncompleteConfig
	}
	if c.Measurement != "" {
		return validation.ValidateMeasurement(c.Measurement)
	}
	return nil
}

// Sink writes one point per match. It implements scan.Sink.
//
// Thread Safety: Safe for concurrent use when the WriteAPI is.
type Sink struct {
	writer      api.WriteAPIBlocking
	measurement string
	now         func() time.Time
	client      influxdb2.Client
}

var _ scan.Sink = (*Sink)(nil)

// NewSink creates a sink on an existing blocking write API.
func NewSink(writer api.WriteAPIBlocking, measurement string) *Sink {
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	return &Sink{writer: writer, measurement: measurement, now: time.Now}
}

// Dial connects to the server in cfg and checks its health.
//
// Description:
//
//	Creates a client, runs one health check bounded by ctx, and returns a
//	Sink writing to cfg.Bucket. Close releases the client.
//
// Outputs:
//
//	*Sink - Ready sink.
//	error - ErrIncompleteConfig, ErrUnhealthy, or the health check error.
func Dial(ctx context.Context, cfg Config) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx: health check: %w", err)
	}
	if health.Status != "pass" {
		msg := string(health.Status)
		if health.Message != nil {
			msg = *health.Message
		}
		client.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnhealthy, msg)
	}

	s := NewSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement)
	s.client = client
	return s, nil
}

// Put writes res as a point tagged with runID.
func (s *Sink) Put(ctx context.Context, runID string, res *filter.Result) error {
	if res == nil {
		return errors.New("influx: nil result")
	}
	if err := s.writer.WritePoint(ctx, s.point(runID, res)); err != nil {
		return fmt.Errorf("influx: write seed %d: %w", res.Seed, err)
	}
	return nil
}

func (s *Sink) point(runID string, res *filter.Result) *write.Point {
	items := 0
	for _, list := range res.Items {
		items += len(list)
	}
	goals := append([]string(nil), res.Goals...)
	sort.Strings(goals)

	return influxdb2.NewPoint(
		s.measurement,
		map[string]string{"run_id": runID},
		map[string]interface{}{
			"seed":        res.Seed,
			"origin_x":    res.Origin.X,
			"origin_z":    res.Origin.Z,
			"goals":       strings.Join(goals, ","),
			"goal_count":  len(res.Goals),
			"items":       items,
			"repositions": res.Stats.Repositions,
		},
		s.now(),
	)
}

// Close releases the client opened by Dial. It is a no-op for sinks made
// with NewSink.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}
