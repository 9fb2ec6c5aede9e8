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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SeedFilter/pkg/ux"
	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/config"
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
	"github.com/AleutianAI/SeedFilter/services/filter/criterion"
	"github.com/AleutianAI/SeedFilter/services/filter/worldgen"
)

// loadedFilter is a compiled filter and where it came from.
type loadedFilter struct {
	filter *filter.WorldFilter
	file   *config.File
	source string
	path   string
}

func (a *app) loadFilter(ctx context.Context, path string) (*loadedFilter, error) {
	file, source, err := config.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	f, err := file.Compile(filter.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	switch source {
	case config.SourceEnv:
		path = os.Getenv(config.EnvFilterPath)
	case config.SourceEmbedded:
		path = ""
	}
	a.log.Debug("filter ready",
		slog.String("source", source),
		slog.Int("goals", len(f.Goals())),
		slog.Int("criteria", len(f.Criteria())))
	return &loadedFilter{filter: f, file: file, source: source, path: path}, nil
}

// outputFormat resolves --format, defaulting by whether stdout is a terminal.
func (a *app) outputFormat(flag string) (ux.Format, error) {
	format, set, err := ux.ParseFormat(flag)
	if err != nil {
		return "", err
	}
	if !set {
		format = ux.DetectFormat(a.stdout)
	}
	return format, nil
}

type filterSummary struct {
	Source      string              `json:"source"`
	Path        string              `json:"path,omitempty"`
	Attribution string              `json:"attribution"`
	Center      *coords.Coordinates `json:"center,omitempty"`
	Goals       []string            `json:"goals"`
	Criteria    int                 `json:"criteria"`
	MaxRegions  int                 `json:"max_match_regions"`
}

func newValidateCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Load and compile a filter file and describe it",
		Long: `Loads a filter file (or $SEEDFILTER_FILTER_PATH, or the embedded default),
compiles it, and prints its goals and the number of criteria a match tracks.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			out, err := a.outputFormat(format)
			if err != nil {
				return err
			}
			lf, err := a.loadFilter(cmd.Context(), path)
			if err != nil {
				return err
			}

			attribution := lf.file.Attribution
			if attribution == "" {
				attribution = filter.AttributeFirstClaim.String()
			}
			summary := filterSummary{
				Source:      lf.source,
				Path:        lf.path,
				Attribution: attribution,
				Goals:       lf.filter.Goals(),
				Criteria:    len(lf.filter.Criteria()),
				MaxRegions:  criterion.WorstCaseRegions(lf.filter.MatchCriterion()),
			}
			if c, ok := lf.filter.Center(); ok {
				summary.Center = &c
			}

			if out != ux.FormatHuman {
				return json.NewEncoder(a.stdout).Encode(summary)
			}
			p := ux.NewPrinter(a.stdout)
			p.Success("filter is valid")
			p.Field("source", summary.Source)
			if summary.Path != "" {
				p.Field("path", summary.Path)
			}
			p.Field("attribution", summary.Attribution)
			if summary.Center != nil {
				p.Field("center", fmt.Sprintf("(%d, %d)", summary.Center.X, summary.Center.Z))
			} else {
				p.Field("center", "spawn")
			}
			p.Field("criteria", summary.Criteria)
			p.Field("max match regions", summary.MaxRegions)
			p.Field("goals", len(summary.Goals))
			for _, g := range summary.Goals {
				p.Bullet(g)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: human or json (default: human on a terminal)")
	return cmd
}

type checkResult struct {
	Seed    int64     `json:"seed"`
	Matched bool      `json:"matched"`
	Match   *matchRow `json:"match,omitempty"`
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		seed       int64
		filterPath string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Match a single seed against the filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.outputFormat(format)
			if err != nil {
				return err
			}
			lf, err := a.loadFilter(cmd.Context(), filterPath)
			if err != nil {
				return err
			}
			gen, err := worldgen.New(seed, worldgen.DefaultConfig())
			if err != nil {
				return err
			}
			res, err := lf.filter.Match(cmd.Context(), gen)
			if err != nil {
				return err
			}

			switch out {
			case ux.FormatJSON:
				cr := checkResult{Seed: seed, Matched: res != nil}
				if res != nil {
					row := rowFromResult("", res)
					cr.Match = &row
				}
				return json.NewEncoder(a.stdout).Encode(cr)
			case ux.FormatCSV:
				if res == nil {
					return nil
				}
				return newMatchWriter(a.stdout, out).write(rowFromResult("", res))
			default:
				if res == nil {
					ux.NewPrinter(a.stdout).Error(fmt.Sprintf("seed %d rejected", seed))
					return nil
				}
				return newMatchWriter(a.stdout, out).write(rowFromResult("", res))
			}
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed to check")
	cmd.Flags().StringVar(&filterPath, "filter", "", "Filter file (default: $SEEDFILTER_FILTER_PATH or the embedded filter)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: human, json or csv")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}
