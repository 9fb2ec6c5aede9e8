// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command seedfilter searches world seeds for ones that satisfy a filter.
//
// A filter is a YAML file describing a mandatory criterion and optional
// named goals built from structure and biome leaves combined with and/or.
// The embedded default filter is used when no file is given.
//
// Usage:
//
//	seedfilter validate my_filter.yaml
//	seedfilter check --seed 42 --filter my_filter.yaml
//	seedfilter scan --from 0 --to 1000000 --workers 8 --db ./results --watch --filter my_filter.yaml
//	seedfilter results --db ./results --run <run id>
//
// With --metrics-addr set, /metrics and /healthz are served for the
// duration of the command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SeedFilter/pkg/logging"
	"github.com/AleutianAI/SeedFilter/services/filter/telemetry"
)

// app holds the state shared by every subcommand.
type app struct {
	logLevel       string
	logDir         string
	logJSON        bool
	metricsAddr    string
	traceExporter  string
	metricExporter string

	stdout io.Writer
	stderr io.Writer

	logger   *logging.Logger
	log      *slog.Logger
	health   *healthState
	server   *metricsServer
	shutdown func(context.Context) error
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		health: newHealthState(),
		log:    slog.New(slog.NewTextHandler(stderr, nil)),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "seedfilter",
		Short:         "Search world seeds for ones that satisfy a filter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), cmd.Name())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "info", "Minimum log level: debug, info, warn, error")
	flags.StringVar(&a.logDir, "log-dir", "", "Also write JSON logs to this directory")
	flags.BoolVar(&a.logJSON, "log-json", false, "Write console logs as JSON")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and the match stream on this address (e.g. :9090)")
	flags.StringVar(&a.traceExporter, "trace-exporter", "", "Trace exporter: otlp, stdout, none (default from OTEL_TRACES_EXPORTER)")
	flags.StringVar(&a.metricExporter, "metric-exporter", "", "Metric exporter: prometheus, stdout, none (default from OTEL_METRICS_EXPORTER)")

	root.AddCommand(
		newValidateCmd(a),
		newCheckCmd(a),
		newScanCmd(a),
		newResultsCmd(a),
	)
	return root
}

// setup builds the logger, telemetry, and metrics server from the
// persistent flags.
func (a *app) setup(ctx context.Context, command string) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger, err = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "seedfilter",
		JSON:    a.logJSON,
		Output:  a.stderr,
	})
	if err != nil {
		return err
	}
	a.log = a.logger.Slog().With(slog.String("command", command))
	slog.SetDefault(a.log)
	a.health.command.Store(&command)

	cfg := telemetry.DefaultConfig()
	if a.traceExporter != "" {
		cfg.TraceExporter = a.traceExporter
	}
	if a.metricExporter != "" {
		cfg.MetricExporter = a.metricExporter
	}
	a.shutdown, err = telemetry.Init(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	if a.metricsAddr != "" {
		a.server, err = startMetricsServer(a.metricsAddr, a.health, newMatchHub(a.log), a.log)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return nil
}

// close releases what setup created. Safe to call after a failed setup.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.shutdown(ctx))
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// run executes the CLI with args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		a.log.Warn("shutdown", slog.String("error", cerr.Error()))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
