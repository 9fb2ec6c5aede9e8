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
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/coords"
)

func dialStream(t *testing.T, srv *metricsServer) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/v1/matches/stream", nil)
	require.NoError(t, err)
	return conn
}

func TestMatchHub_Stream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := newMatchHub(logger)
	srv, err := startMetricsServer("127.0.0.1:0", newHealthState(), hub, logger)
	require.NoError(t, err)

	conn := dialStream(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	res := &filter.Result{Seed: 77, Origin: coords.New(5, -5), Goals: []string{"near_temple"}}
	require.NoError(t, hub.Put(context.Background(), "run-x", res))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var row matchRow
	require.NoError(t, json.Unmarshal(msg, &row))
	assert.Equal(t, "run-x", row.RunID)
	assert.Equal(t, int64(77), row.Seed)
	assert.Equal(t, coords.New(5, -5), row.Origin)
	assert.Equal(t, []string{"near_temple"}, row.Goals)

	require.NoError(t, srv.shutdown(context.Background()))
	assert.Equal(t, 0, hub.count())

	// The hub sends a close frame on shutdown.
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway) || strings.Contains(err.Error(), "close"), err.Error())
}

func TestMatchHub_ClientDisconnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := newMatchHub(logger)
	srv, err := startMetricsServer("127.0.0.1:0", newHealthState(), hub, logger)
	require.NoError(t, err)
	defer func() { _ = srv.shutdown(context.Background()) }()

	conn := dialStream(t, srv)
	require.Eventually(t, func() bool { return hub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMatchHub_NoClients(t *testing.T) {
	hub := newMatchHub(nil)
	assert.NoError(t, hub.Put(context.Background(), "r", &filter.Result{Seed: 1}))
	hub.close()
	assert.NoError(t, hub.Put(context.Background(), "r", &filter.Result{Seed: 2}))
}
