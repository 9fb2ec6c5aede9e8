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
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// EnvFilterPath overrides the default filter file location.
const EnvFilterPath = "SEEDFILTER_FILTER_PATH"

// Sources reported by Load.
const (
	SourceFile     = "file"
	SourceEnv      = "env"
	SourceEmbedded = "embedded"
)

//go:embed default_filter.yaml
var defaultFilterYAML []byte

var (
	filterLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedfilter_filter_loads_total",
		Help: "Total filter file loads by source and result",
	}, []string{"source", "result"})

	filterLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seedfilter_filter_load_duration_seconds",
		Help:    "Duration of filter file loading and validation",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
)

var configTracer = otel.Tracer("seedfilter.config")

// DefaultYAML returns a copy of the embedded default filter.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultFilterYAML...)
}

// Parse decodes and validates a filter document. Unknown keys are errors.
func Parse(ctx context.Context, data []byte) (*File, error) {
	_, span := configTracer.Start(ctx, "config.Parse",
		trace.WithAttributes(attribute.Int("yaml_size", len(data))),
	)
	defer span.End()

	if len(data) > MaxFilterFileSize {
		err := fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), MaxFilterFileSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, "too large")
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("document is empty")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("decoding filter YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("goal_count", len(f.Goals)))
	return &f, nil
}

// LoadFile reads and parses the filter file at path.
func LoadFile(ctx context.Context, path string) (*File, error) {
	ctx, span := configTracer.Start(ctx, "config.LoadFile",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("stat filter file: %w", err)
	}
	if info.Size() > MaxFilterFileSize {
		err := fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxFilterFileSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, "too large")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("file_size", info.Size()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading filter file: %w", err)
	}
	f, err := Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return f, nil
}

// Load returns the filter to use and where it came from.
//
// Description:
//
//	An explicit path wins, then the file named by SEEDFILTER_FILTER_PATH,
//	then the embedded default. Unlike a missing optional file, an
//	explicitly requested file that cannot be loaded is an error.
//
// Outputs:
//
//	*File - The parsed, validated filter.
//	string - SourceFile, SourceEnv or SourceEmbedded.
//	error - Non-nil if the selected source could not be loaded.
func Load(ctx context.Context, path string) (*File, string, error) {
	ctx, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	start := time.Now()
	defer func() {
		filterLoadDuration.Observe(time.Since(start).Seconds())
	}()

	source := SourceEmbedded
	switch {
	case path != "":
		source = SourceFile
	case os.Getenv(EnvFilterPath) != "":
		path, source = os.Getenv(EnvFilterPath), SourceEnv
	}
	span.SetAttributes(attribute.String("source", source))

	var (
		f   *File
		err error
	)
	if source == SourceEmbedded {
		f, err = Parse(ctx, defaultFilterYAML)
	} else {
		f, err = LoadFile(ctx, path)
	}
	if err != nil {
		filterLoads.WithLabelValues(source, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, source, err
	}

	filterLoads.WithLabelValues(source, "ok").Inc()
	slog.Debug("filter loaded",
		slog.String("source", source),
		slog.String("path", path),
		slog.Int("goal_count", len(f.Goals)),
	)
	return f, source, nil
}
