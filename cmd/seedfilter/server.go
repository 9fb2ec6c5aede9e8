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
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/SeedFilter/services/filter/telemetry"
)

// healthState is what /healthz reports.
type healthState struct {
	started  time.Time
	command  atomic.Pointer[string]
	scanning atomic.Bool
	scanned  atomic.Int64
	matched  atomic.Int64
}

func newHealthState() *healthState {
	return &healthState{started: time.Now()}
}

type healthResponse struct {
	Status        string  `json:"status"`
	Command       string  `json:"command,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Scanning      bool    `json:"scanning"`
	Scanned       int64   `json:"scanned"`
	Matched       int64   `json:"matched"`
}

func (h *healthState) snapshot() healthResponse {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.started).Seconds(),
		Scanning:      h.scanning.Load(),
		Scanned:       h.scanned.Load(),
		Matched:       h.matched.Load(),
	}
	if cmd := h.command.Load(); cmd != nil {
		resp.Command = *cmd
	}
	return resp
}

// newRouter serves /healthz, /metrics and the live match stream. /metrics
// falls back to the default prometheus registry when the OTel prometheus
// exporter is off, which still exposes the filter load metrics.
func newRouter(health *healthState, hub *matchHub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("seedfilter"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, health.snapshot())
	})

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))
	router.GET("/v1/matches/stream", hub.handle)
	return router
}

// metricsServer runs newRouter in the background for the life of a command.
type metricsServer struct {
	srv    *http.Server
	hub    *matchHub
	addr   string
	done   chan struct{}
	logger *slog.Logger
}

// startMetricsServer listens on addr before returning, so a bad address
// fails the command instead of a background goroutine.
func startMetricsServer(addr string, health *healthState, hub *matchHub, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &metricsServer{
		srv: &http.Server{
			Handler:           newRouter(health, hub),
			ReadHeaderTimeout: 5 * time.Second,
		},
		hub:    hub,
		addr:   ln.Addr().String(),
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics server listening", slog.String("address", s.addr))
	return s, nil
}

// Addr returns the bound address.
func (s *metricsServer) Addr() string {
	return s.addr
}

func (s *metricsServer) shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.hub.close()
	<-s.done
	return err
}
