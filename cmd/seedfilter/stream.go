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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/SeedFilter/services/filter"
	"github.com/AleutianAI/SeedFilter/services/filter/scan"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// matchHub fans live matches out to websocket clients on
// /v1/matches/stream. It implements scan.Sink. A client that falls
// streamBuffer messages behind is dropped rather than slowing the scan.
type matchHub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
	logger  *slog.Logger
}

var _ scan.Sink = (*matchHub)(nil)

func newMatchHub(logger *slog.Logger) *matchHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &matchHub{clients: make(map[*streamClient]struct{}), logger: logger}
}

// Put broadcasts res to every connected client. It never blocks.
func (h *matchHub) Put(_ context.Context, runID string, res *filter.Result) error {
	msg, err := json.Marshal(rowFromResult(runID, res))
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow stream client", slog.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
	return nil
}

func (h *matchHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *matchHub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *matchHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *matchHub) removeLocked(c *streamClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// close disconnects every client. http.Server.Shutdown does not track
// hijacked connections, so the server calls this itself.
func (h *matchHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *matchHub) handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	client := &streamClient{conn: conn, send: make(chan []byte, streamBuffer)}
	if !h.add(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(streamWriteWait))
		conn.Close()
		return
	}
	h.logger.Debug("stream client connected", slog.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(client)

	// Clients never send data; reading only notices the disconnect.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.remove(client)
	h.logger.Debug("stream client disconnected", slog.String("remote", conn.RemoteAddr().String()))
}

func (h *matchHub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
