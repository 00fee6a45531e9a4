package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/civitas-sim/internal/engine"
)

const (
	catchUpEvents  = 50
	heartbeatEvery = 15 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// acquireStream reserves one of the shared stream slots.
func (s *Server) acquireStream() bool {
	if s.streamConns.Add(1) > maxStreamConns {
		s.streamConns.Add(-1)
		return false
	}
	return true
}

func (s *Server) releaseStream() { s.streamConns.Add(-1) }

// handleStream provides an SSE endpoint for real-time event streaming.
// Requires the relay bearer token.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if !bearer(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if !s.acquireStream() {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	for _, e := range s.Sim.RecentEvents(catchUpEvents, "") {
		writeSSEEvent(w, e)
	}
	flusher.Flush()
	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Category, data)
}

// handleWebSocket streams events over a websocket. An optional category
// query parameter filters both the catch-up and the live feed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.acquireStream() {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseStream()

	// Subscribe before the handshake completes so nothing emitted after the
	// client connects is missed.
	category := r.URL.Query().Get("category")
	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	slog.Info("websocket client connected", "sub_id", subID, "category", category)

	// The reader only watches for the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	for _, e := range s.Sim.RecentEvents(catchUpEvents, category) {
		if err := send(e); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if category != "" && e.Category != category {
				continue
			}
			if err := send(e); err != nil {
				slog.Info("websocket client dropped", "sub_id", subID, "error", err)
				return
			}
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("websocket client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}
