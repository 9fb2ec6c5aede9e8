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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/SeedFilter/services/filter"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce is the quiet period before reloading. Default: 200ms.
	Debounce time.Duration

	// Logger receives reload outcomes. Nil uses slog.Default().
	Logger *slog.Logger

	// FilterOptions are passed to Compile on every reload.
	FilterOptions []filter.Option
}

// Watch recompiles the filter file at path whenever it changes and hands
// the new filter to onReload.
//
// Description:
//
//	Watches the parent directory, so editors that replace the file on save
//	are handled. Bursts of events are debounced. A file that fails to load
//	or compile is logged and skipped; onReload only ever sees valid
//	filters. Watch blocks until ctx is done.
//
// Inputs:
//
//	ctx - Cancels the watch.
//	path - The filter file.
//	onReload - Called from the watch goroutine with each new filter.
//	opts - Debounce, logger and compile options.
//
// Outputs:
//
//	error - Non-nil if the watch could not be started.
func Watch(ctx context.Context, path string, onReload func(*filter.WorldFilter), opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}

	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(opts.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("filter watch error", slog.String("error", err.Error()))

		case <-timer.C:
			f, err := LoadFile(ctx, absPath)
			if err == nil {
				var wf *filter.WorldFilter
				wf, err = f.Compile(opts.FilterOptions...)
				if err == nil {
					filterLoads.WithLabelValues("watch", "ok").Inc()
					logger.Info("filter reloaded",
						slog.String("path", absPath),
						slog.Int("goal_count", len(wf.Goals())),
					)
					onReload(wf)
					continue
				}
			}
			filterLoads.WithLabelValues("watch", "error").Inc()
			logger.Warn("filter reload failed, keeping previous filter",
				slog.String("path", absPath),
				slog.String("error", err.Error()),
			)
		}
	}
}
