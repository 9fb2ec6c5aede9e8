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
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/SeedFilter/pkg/ux"
	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/scan"
	storage "github.com/AleutianAI/SeedFilter/services/filter/storage/badger"
)

// matchRow is the printed form of a match, live or stored.
type matchRow struct {
	RunID       string                      `json:"run_id,omitempty"`
	Seed        int64                       `json:"seed"`
	Origin      coords.Coordinates          `json:"origin"`
	Goals       []string                    `json:"goals"`
	Items       map[string][]criterion.Item `json:"items"`
	Repositions int                         `json:"repositions"`
}

func rowFromResult(runID string, res *filter.Result) matchRow {
	return matchRow{
		RunID:       runID,
		Seed:        res.Seed,
		Origin:      res.Origin,
		Goals:       res.Goals,
		Items:       res.Items,
		Repositions: res.Stats.Repositions,
	}
}

func rowFromRecord(rec storage.Record) matchRow {
	return matchRow{
		RunID:       rec.RunID,
		Seed:        rec.Seed,
		Origin:      rec.Origin,
		Goals:       rec.Goals,
		Items:       rec.Items,
		Repositions: rec.Repositions,
	}
}

var csvHeader = []string{"run_id", "seed", "origin_x", "origin_z", "goals", "items", "repositions"}

// matchWriter prints matches in one format. It implements scan.Sink; the
// scanner serializes calls, and so does every other caller.
type matchWriter struct {
	format  ux.Format
	printer *ux.Printer
	json    *json.Encoder
	csv     *csv.Writer
	header  bool
}

var _ scan.Sink = (*matchWriter)(nil)

func newMatchWriter(w io.Writer, format ux.Format) *matchWriter {
	mw := &matchWriter{format: format}
	switch format {
	case ux.FormatJSON:
		mw.json = json.NewEncoder(w)
	case ux.FormatCSV:
		mw.csv = csv.NewWriter(w)
	default:
		mw.printer = ux.NewPrinter(w)
	}
	return mw
}

// Put implements scan.Sink.
func (m *matchWriter) Put(_ context.Context, runID string, res *filter.Result) error {
	return m.write(rowFromResult(runID, res))
}

func (m *matchWriter) write(row matchRow) error {
	switch m.format {
	case ux.FormatJSON:
		return m.json.Encode(row)
	case ux.FormatCSV:
		if !m.header {
			if err := m.csv.Write(csvHeader); err != nil {
				return err
			}
			m.header = true
		}
		if err := m.csv.Write(row.csv()); err != nil {
			return err
		}
		m.csv.Flush()
		return m.csv.Error()
	default:
		m.human(row)
		return nil
	}
}

func (m *matchWriter) human(row matchRow) {
	p := m.printer
	p.Success(fmt.Sprintf("seed %d", row.Seed))
	p.Field("origin", fmt.Sprintf("(%d, %d)", row.Origin.X, row.Origin.Z))
	if len(row.Goals) > 0 {
		p.Field("goals", strings.Join(row.Goals, ", "))
	}
	for _, bucket := range itemBuckets(row.Items) {
		label := bucket
		if label == filter.NoGoal {
			label = "match"
		}
		p.Field(label, formatItems(row.Items[bucket]))
	}
}

func (r matchRow) csv() []string {
	count := 0
	for _, items := range r.Items {
		count += len(items)
	}
	return []string{
		r.RunID,
		strconv.FormatInt(r.Seed, 10),
		strconv.FormatInt(r.Origin.X, 10),
		strconv.FormatInt(r.Origin.Z, 10),
		strings.Join(r.Goals, ";"),
		strconv.Itoa(count),
		strconv.Itoa(r.Repositions),
	}
}

// itemBuckets returns the keys of items with the mandatory bucket first.
func itemBuckets(items map[string][]criterion.Item) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatItems(items []criterion.Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%s@(%d, %d)", it.Kind, it.Pos.X, it.Pos.Z)
	}
	return strings.Join(parts, " ")
}
