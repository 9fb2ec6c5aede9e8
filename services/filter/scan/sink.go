// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"errors"
	"sync"

	"github.com/AleutianAI/SeedFilter/services/filter"
)

// Sink receives the matches of a scan.
//
// The Scanner serializes calls to Put, so implementations need not be safe
// for concurrent use by a single run. A Put error aborts the run.
type Sink interface {
	Put(ctx context.Context, runID string, res *filter.Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, runID string, res *filter.Result) error

// Put calls f.
func (f SinkFunc) Put(ctx context.Context, runID string, res *filter.Result) error {
	return f(ctx, runID, res)
}

// MultiSink fans every match out to each sink in order. All sinks are
// called even when one fails; the failures are joined.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, runID string, res *filter.Result) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Put(ctx, runID, res); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Collector is an in-memory Sink. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	results []*filter.Result
}

// Put appends res.
func (c *Collector) Put(_ context.Context, _ string, res *filter.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	return nil
}

// Results returns the collected matches in arrival order.
func (c *Collector) Results() []*filter.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*filter.Result, len(c.results))
	copy(out, c.results)
	return out
}

// Seeds returns the seeds of the collected matches in arrival order.
func (c *Collector) Seeds() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.results))
	for i, r := range c.results {
		out[i] = r.Seed
	}
	return out
}
