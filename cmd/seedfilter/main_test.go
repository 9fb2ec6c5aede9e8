// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeedFilter/pkg/ux"
	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/config"
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	storage "github.com/AleutianAI/SeedFilter/services/filter/storage/badger"
)

// execute runs the CLI with telemetry exporters off.
func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv(config.EnvFilterPath, "")
	var stdout, stderr bytes.Buffer
	args = append(args, "--trace-exporter", "none", "--metric-exporter", "none")
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func jsonLines[T any](t *testing.T, out string) []T {
	t.Helper()
	var rows []T
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal([]byte(line), &v), line)
		rows = append(rows, v)
	}
	return rows
}

func TestValidate_EmbeddedFilter(t *testing.T) {
	code, out, errOut := execute(t, "validate", "--format", "json")
	require.Equal(t, 0, code, errOut)

	var summary filterSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, config.SourceEmbedded, summary.Source)
	assert.Equal(t, "first_claim", summary.Attribution)
	assert.Equal(t, []string{"near_temple", "temple_and_outpost"}, summary.Goals)
	assert.Equal(t, 8, summary.Criteria)
	assert.Nil(t, summary.Center)
}

func TestValidate_FileHuman(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
center: {x: 100, z: -200}
match:
  structure: {kind: village, radius: 1}
`), 0600))

	code, out, errOut := execute(t, "validate", path, "--format", "human")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "filter is valid")
	assert.Contains(t, out, "center: (100, -200)")
	assert.Contains(t, out, "criteria: 1")
	assert.Contains(t, out, "max match regions: 9")
}

func TestValidate_Errors(t *testing.T) {
	code, _, errOut := execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")

	code, _, errOut = execute(t, "validate", "--format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown output format")

	code, _, errOut = execute(t, "validate", "--log-level", "loud")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown level")
}

func TestCheck_JSON(t *testing.T) {
	code, out, errOut := execute(t, "check", "--seed", "12345", "--format", "json")
	require.Equal(t, 0, code, errOut)

	var res checkResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(12345), res.Seed)
	assert.Equal(t, res.Matched, res.Match != nil)
	if res.Match != nil {
		assert.Equal(t, int64(12345), res.Match.Seed)
		assert.NotEmpty(t, res.Match.Items[filter.NoGoal])
	}
}

func TestCheck_RequiresSeed(t *testing.T) {
	code, _, errOut := execute(t, "check")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "seed")
}

func TestScan_RangeErrors(t *testing.T) {
	code, _, errOut := execute(t, "scan", "--from", "10", "--to", "10")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "empty seed range")

	code, _, errOut = execute(t, "scan", "--to", "10", "--watch")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--watch needs a filter file")
}

func TestScan_StoreAndResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")

	code, out, errOut := execute(t, "scan", "--from", "0", "--to", "40", "--workers", "4",
		"--db", dir, "--format", "json", "--progress", "0")
	require.Equal(t, 0, code, errOut)
	matches := jsonLines[matchRow](t, out)

	code, out, errOut = execute(t, "results", "--db", dir, "--format", "json")
	require.Equal(t, 0, code, errOut)
	runs := jsonLines[storage.RunSummary](t, out)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, len(matches), run.Matches)
	require.True(t, run.Finished())
	assert.Equal(t, int64(40), run.Stats.Scanned+run.Stats.Failed)
	assert.Equal(t, int64(len(matches)), run.Stats.Matched)
	for _, m := range matches {
		assert.Equal(t, run.RunID, m.RunID)
	}

	code, out, errOut = execute(t, "results", "--db", dir, "--run", run.RunID, "--format", "csv")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(matches) == 0 {
		assert.Equal(t, []string{""}, lines)
	} else {
		assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
		assert.Len(t, lines, len(matches)+1)
	}
}

func TestScan_HumanSummary(t *testing.T) {
	code, out, errOut := execute(t, "scan", "--from", "-5", "--to", "5", "--format", "human", "--progress", "0")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Scan ")
	assert.Contains(t, out, "scanned:")
	assert.Contains(t, out, "100%")
}

func TestResults_EmptyDB(t *testing.T) {
	code, out, errOut := execute(t, "results", "--db", t.TempDir(), "--format", "human")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "no runs stored")
}

func TestMatchWriter_Formats(t *testing.T) {
	row := matchRow{
		RunID:  "r1",
		Seed:   -7,
		Origin: coords.New(8, 16),
		Goals:  []string{"a", "b"},
		Items: map[string][]criterion.Item{
			filter.NoGoal: {{Kind: "village", Pos: coords.New(1, 2)}},
			"a":           {{Kind: "desert_temple", Pos: coords.New(3, 4)}},
		},
		Repositions: 5,
	}

	var csvOut bytes.Buffer
	w := newMatchWriter(&csvOut, ux.FormatCSV)
	require.NoError(t, w.write(row))
	require.NoError(t, w.write(row))
	assert.Equal(t,
		"run_id,seed,origin_x,origin_z,goals,items,repositions\n"+
			"r1,-7,8,16,a;b,2,5\n"+
			"r1,-7,8,16,a;b,2,5\n",
		csvOut.String())

	var human bytes.Buffer
	require.NoError(t, newMatchWriter(&human, ux.FormatHuman).write(row))
	assert.Equal(t,
		"✓ seed -7\n"+
			"  origin: (8, 16)\n"+
			"  goals: a, b\n"+
			"  match: village@(1, 2)\n"+
			"  a: desert_temple@(3, 4)\n",
		human.String())

	var jsonOut bytes.Buffer
	require.NoError(t, newMatchWriter(&jsonOut, ux.FormatJSON).write(row))
	var back matchRow
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &back))
	assert.Equal(t, row, back)
}

func TestRouter_Health(t *testing.T) {
	health := newHealthState()
	cmd := "scan"
	health.command.Store(&cmd)
	health.scanning.Store(true)
	health.matched.Add(3)
	router := newRouter(health, newMatchHub(nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "scan", resp.Command)
	assert.True(t, resp.Scanning)
	assert.Equal(t, int64(3), resp.Matched)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsServer_Lifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := startMetricsServer("127.0.0.1:0", newHealthState(), newMatchHub(logger), logger)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.shutdown(context.Background()))

	_, err = startMetricsServer("256.0.0.1:bad", newHealthState(), newMatchHub(logger), logger)
	assert.Error(t, err)
}
