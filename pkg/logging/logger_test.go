// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"Warning", LevelWarn},
		{"warn", LevelWarn},
		{" error ", LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Info("hidden")
	logger.Slog().Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{JSON: true, Service: "scan", Output: &buf})
	require.NoError(t, err)

	logger.Slog().Info("scan started", "workers", 4)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scan started", entry["msg"])
	assert.Equal(t, "scan", entry["service"])
	assert.Equal(t, float64(4), entry["workers"])
}

func TestNew_QuietWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Quiet: true, Output: &buf})
	require.NoError(t, err)
	logger.Slog().Error("nothing")
	assert.Empty(t, buf.String())
	assert.NoError(t, logger.Close())
}

func TestNew_LogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	var buf bytes.Buffer
	logger, err := New(Config{LogDir: dir, Service: "check", Output: &buf})
	require.NoError(t, err)

	logger.Slog().With("seed", 7).Info("matched")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	assert.True(t, strings.HasPrefix(filepath.Base(logger.Path()), "check_"))
	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "matched", entry["msg"])
	assert.Equal(t, float64(7), entry["seed"])
	assert.Contains(t, buf.String(), "matched")
}

func TestNew_LogDirDefaultService(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)
	defer logger.Close()
	assert.True(t, strings.HasPrefix(filepath.Base(logger.Path()), "seedfilter_"))
}

func TestNew_LogDirUnwritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0600))

	_, err := New(Config{LogDir: filepath.Join(file, "logs")})
	assert.Error(t, err)
}

func TestMultiHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).WithGroup("scan").With("run", "r1")
	logger.Debug("progress")
	logger.Warn("seed failed")

	assert.Contains(t, debug.String(), "progress")
	assert.Contains(t, debug.String(), "scan.run=r1")
	assert.NotContains(t, warn.String(), "progress")
	assert.Contains(t, warn.String(), "seed failed")
}

func TestLogger_ConcurrentUse(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Slog().Info("tick", "worker", i, "n", j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "\n"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
