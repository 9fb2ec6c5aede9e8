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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/SeedFilter/pkg/ux"
	"github.com/AleutianAI/SeedFilter/pkg/validation"
	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/config"
	"github.com/AleutianAI/SeedFilter/services/filter/scan"
	storage "github.com/AleutianAI/SeedFilter/services/filter/storage/badger"
	"github.com/AleutianAI/SeedFilter/services/filter/storage/influx"
	"github.com/AleutianAI/SeedFilter/services/filter/telemetry"
	"github.com/AleutianAI/SeedFilter/services/filter/worldgen"
)

// ErrWatchNeedsFile is returned by scan --watch with the embedded filter.
var ErrWatchNeedsFile = errors.New("--watch needs a filter file (--filter or $SEEDFILTER_FILTER_PATH)")

type scanFlags struct {
	from       int64
	to         int64
	workers    int
	dbDir      string
	filterPath string
	format     string
	watch      bool
	failFast   bool
	rate       float64
	progress   time.Duration
	influx     influx.Config
}

func newScanCmd(a *app) *cobra.Command {
	var fl scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Match every seed in [from, to) and report the matches",
		Long: `Scans the seeds in [from, to) with a pool of workers. Matches are printed
as they are found and, with --db, stored for the results command. With
--watch, edits to the filter file take effect for seeds not yet started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context(), fl)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&fl.from, "from", 0, "First seed (inclusive)")
	f.Int64Var(&fl.to, "to", 0, "Last seed (exclusive)")
	f.IntVar(&fl.workers, "workers", 0, "Concurrent matches (default: GOMAXPROCS)")
	f.StringVar(&fl.dbDir, "db", "", "Store matches in this BadgerDB directory")
	f.StringVar(&fl.filterPath, "filter", "", "Filter file (default: $SEEDFILTER_FILTER_PATH or the embedded filter)")
	f.StringVar(&fl.format, "format", "", "Output format: human, json or csv")
	f.BoolVar(&fl.watch, "watch", false, "Reload the filter file when it changes")
	f.BoolVar(&fl.failFast, "fail-fast", false, "Stop at the first seed that fails to evaluate")
	f.Float64Var(&fl.rate, "rate", 0, "Maximum seeds per second (0: unlimited)")
	f.DurationVar(&fl.progress, "progress", scan.DefaultProgressInterval, "Progress log interval (0 disables)")
	f.StringVar(&fl.influx.URL, "influx-url", "", "Also write matches to this InfluxDB server")
	f.StringVar(&fl.influx.Token, "influx-token", os.Getenv("INFLUXDB_TOKEN"), "InfluxDB token (default: $INFLUXDB_TOKEN)")
	f.StringVar(&fl.influx.Org, "influx-org", "", "InfluxDB organization")
	f.StringVar(&fl.influx.Bucket, "influx-bucket", "", "InfluxDB bucket")
	f.StringVar(&fl.influx.Measurement, "influx-measurement", influx.DefaultMeasurement, "InfluxDB measurement")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) runScan(ctx context.Context, fl scanFlags) error {
	r := scan.SeedRange{From: fl.from, To: fl.to}
	if err := r.Validate(); err != nil {
		return err
	}
	out, err := a.outputFormat(fl.format)
	if err != nil {
		return err
	}
	lf, err := a.loadFilter(ctx, fl.filterPath)
	if err != nil {
		return err
	}
	if fl.watch && lf.path == "" {
		return ErrWatchNeedsFile
	}

	sources, err := worldgen.Factory(worldgen.DefaultConfig())
	if err != nil {
		return err
	}
	metrics, err := telemetry.NewMetrics(otel.Meter("seedfilter.scan"))
	if err != nil {
		return err
	}

	var sinks []scan.Sink
	var store *storage.MatchStore
	if fl.dbDir != "" {
		cfg := storage.DefaultConfig()
		cfg.Path = fl.dbDir
		cfg.Logger = a.log
		db, err := storage.OpenDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		store = storage.NewMatchStore(db)
		sinks = append(sinks, store)
	}
	if fl.influx.Enabled() {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		is, err := influx.Dial(dialCtx, fl.influx)
		cancel()
		if err != nil {
			return err
		}
		defer is.Close()
		sinks = append(sinks, is)
	}
	if a.server != nil {
		sinks = append(sinks, a.server.hub)
	}
	sinks = append(sinks,
		newMatchWriter(a.stdout, out),
		scan.SinkFunc(func(context.Context, string, *filter.Result) error {
			a.health.matched.Add(1)
			return nil
		}),
	)

	opts := []scan.Option{
		scan.WithSink(scan.MultiSink(sinks...)),
		scan.WithLogger(a.log),
		scan.WithMetrics(metrics),
		scan.WithProgressInterval(fl.progress),
		scan.WithFailFast(fl.failFast),
	}
	if fl.workers > 0 {
		opts = append(opts, scan.WithWorkers(fl.workers))
	}
	if fl.rate > 0 {
		opts = append(opts, scan.WithRateLimit(fl.rate))
	}
	scanner, err := scan.NewScanner(lf.filter, sources, opts...)
	if err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	if fl.watch {
		go func() {
			defer close(watchDone)
			err := config.Watch(watchCtx, lf.path, func(f *filter.WorldFilter) {
				if err := scanner.SetFilter(f); err == nil {
					a.log.Info("filter swapped", slog.Int("goals", len(f.Goals())))
				}
			}, config.WatchOptions{
				Logger:        a.log,
				FilterOptions: []filter.Option{filter.WithLogger(a.log)},
			})
			if err != nil {
				a.log.Error("filter watch failed", slog.String("error", err.Error()))
			}
		}()
	} else {
		close(watchDone)
	}

	a.health.scanning.Store(true)
	stats, runErr := scanner.Run(ctx, r)
	a.health.scanning.Store(false)
	a.health.scanned.Add(stats.Scanned)
	stopWatch()
	<-watchDone

	if store != nil && stats.RunID != "" {
		if err := store.SaveRun(context.WithoutCancel(ctx), r, stats); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("save run: %w", err))
		}
	}

	if out == ux.FormatHuman {
		p := ux.NewPrinter(a.stdout)
		p.Title(fmt.Sprintf("Scan %s", stats.RunID))
		p.Field("seeds", p.ProgressBar(uint64(stats.Scanned+stats.Failed), r.Len(), 30))
		p.Field("scanned", stats.Scanned)
		p.Field("matched", stats.Matched)
		p.Field("failed", stats.Failed)
		p.Field("duration", stats.Duration.Round(time.Millisecond))
		p.Field("seeds/s", strconv.FormatFloat(stats.SeedsPerSecond(), 'f', 1, 64))
		if store != nil {
			p.Field("stored in", fl.dbDir)
		}
	}
	return runErr
}

func newResultsCmd(a *app) *cobra.Command {
	var dbDir, runID, format string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List stored scan runs, or the matches of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.outputFormat(format)
			if err != nil {
				return err
			}
			cfg := storage.DefaultConfig()
			cfg.Path = dbDir
			cfg.Logger = a.log
			cfg.GCInterval = 0
			db, err := storage.OpenDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			store := storage.NewMatchStore(db)

			if runID == "" {
				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				return a.printRuns(out, runs)
			}

			runID, err = validation.SanitizeRunID(runID)
			if err != nil {
				return err
			}
			records, err := store.List(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(records) == 0 && out == ux.FormatHuman {
				ux.NewPrinter(a.stdout).Warning(fmt.Sprintf("no matches stored for run %s", runID))
				return nil
			}
			w := newMatchWriter(a.stdout, out)
			for _, rec := range records {
				if err := w.write(rowFromRecord(rec)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbDir, "db", "", "BadgerDB directory written by scan --db")
	cmd.Flags().StringVar(&runID, "run", "", "Show the matches of this run")
	cmd.Flags().StringVar(&format, "format", "", "Output format: human, json or csv")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func (a *app) printRuns(out ux.Format, runs []storage.RunSummary) error {
	switch out {
	case ux.FormatJSON:
		enc := json.NewEncoder(a.stdout)
		for _, r := range runs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil

	case ux.FormatCSV:
		w := csv.NewWriter(a.stdout)
		_ = w.Write([]string{"run_id", "matches", "from", "to", "scanned", "failed", "finished_at"})
		for _, r := range runs {
			row := []string{r.RunID, strconv.Itoa(r.Matches), "", "", "", "", ""}
			if r.Finished() {
				row[2] = strconv.FormatInt(r.Range.From, 10)
				row[3] = strconv.FormatInt(r.Range.To, 10)
				row[4] = strconv.FormatInt(r.Stats.Scanned, 10)
				row[5] = strconv.FormatInt(r.Stats.Failed, 10)
				row[6] = r.FinishedAt.Format(time.RFC3339)
			}
			_ = w.Write(row)
		}
		w.Flush()
		return w.Error()

	default:
		p := ux.NewPrinter(a.stdout)
		if len(runs) == 0 {
			p.Warning("no runs stored")
			return nil
		}
		for _, r := range runs {
			p.Title(r.RunID)
			p.Field("matches", r.Matches)
			if !r.Finished() {
				p.Field("status", "unfinished")
				continue
			}
			p.Field("seeds", fmt.Sprintf("[%d, %d)", r.Range.From, r.Range.To))
			p.Field("scanned", r.Stats.Scanned)
			p.Field("failed", r.Stats.Failed)
			p.Field("finished", r.FinishedAt.Format(time.RFC3339))
		}
		return nil
	}
}
