// Package api provides the HTTP API for querying world state.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/civitas-sim/internal/building"
	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/engine"
	"github.com/talgya/civitas-sim/internal/persistence"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

const maxStreamConns = 4

// Server serves the world state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for the SSE stream. Empty = SSE disabled.

	// Active stream connection count (SSE and websocket).
	streamConns atomic.Int32
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	// The bulk map is the heaviest read.
	mapLimiter := NewRateLimiter(5, 10)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("/api/v1/settlements", s.handleSettlements)
	mux.HandleFunc("/api/v1/settlement/", s.handleSettlementDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/map", RateLimitMiddleware(mapLimiter, s.handleMapRoutes))
	mux.HandleFunc("/api/v1/map/", s.handleMapRoutes)

	// Streaming.
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/api/v1/ws", s.handleWebSocket)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/building/", s.adminOnly(s.handleBuildingAction))
	mux.HandleFunc("/api/v1/found", s.adminOnly(s.handleFound))
	mux.HandleFunc("/api/v1/abandon", s.adminOnly(s.handleAbandon))
	mux.HandleFunc("/api/v1/research", s.adminOnly(s.handleResearch))
	mux.HandleFunc("/api/v1/level", s.adminOnly(s.handleLevel))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer reports whether the request carries the given token.
func bearer(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	return bearer(r, s.AdminKey)
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no WORLDSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	stats := s.Sim.Stats()
	status := map[string]any{
		"tick":        tick,
		"sim_time":    engine.SimTime(tick),
		"season":      engine.SeasonName(tick),
		"settlements": stats.Settlements,
		"buildings":   stats.Buildings,
		"coins":       stats.Coins,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	s.Sim.Read(func(wm *world.World, _ []*social.Settlement) {
		status["width"] = wm.Width()
		status["height"] = wm.Height()
		status["fingerprint"] = wm.Fingerprint()
	})
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.Sim.Catalog()
	specs := make([]*economy.BuildingSpec, 0, cat.Len())
	for _, kind := range cat.Kinds() {
		spec, _ := cat.Get(kind)
		specs = append(specs, spec)
	}
	writeJSON(w, specs)
}

// handleMapRoutes dispatches between the bulk map (GET /api/v1/map) and hex
// detail (GET /api/v1/map/:x/:y).
func (s *Server) handleMapRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/map")
	if path == "" || path == "/" {
		s.handleBulkMap(w, r)
		return
	}
	s.handleHexDetail(w, r)
}

// handleBulkMap returns every hex for the map renderer.
func (s *Server) handleBulkMap(w http.ResponseWriter, r *http.Request) {
	type hexEntry struct {
		X            int         `json:"x"`
		Y            int         `json:"y"`
		Terrain      world.Biome `json:"terrain"`
		Elevation    float64     `json:"elevation"`
		Moisture     float64     `json:"moisture"`
		SettlementID *uint64     `json:"settlement_id,omitempty"`
		LockedBy     *uint64     `json:"locked_by,omitempty"`
	}
	type settlementEntry struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
		X    int    `json:"x"`
		Y    int    `json:"y"`
		Tier string `json:"tier"`
	}

	var resp map[string]any
	s.Sim.Read(func(wm *world.World, setts []*social.Settlement) {
		hexes := make([]hexEntry, 0, wm.HexCount())
		for y, row := range wm.Cells() {
			for x, c := range row {
				hexes = append(hexes, hexEntry{
					X:            x,
					Y:            y,
					Terrain:      world.Classify(c.E, c.M),
					Elevation:    c.E,
					Moisture:     c.M,
					SettlementID: c.S,
					LockedBy:     c.LID,
				})
			}
		}
		entries := make([]settlementEntry, 0, len(setts))
		for _, st := range setts {
			entries = append(entries, settlementEntry{
				ID:   st.ID(),
				Name: st.Name(),
				X:    st.Location().X,
				Y:    st.Location().Y,
				Tier: st.Tier().String(),
			})
		}
		resp = map[string]any{
			"width":       wm.Width(),
			"height":      wm.Height(),
			"colors":      world.Colors(),
			"hexes":       hexes,
			"settlements": entries,
		}
	})
	writeJSON(w, resp)
}

// handleHexDetail returns one hex with its neighbors.
func (s *Server) handleHexDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/map/"), "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "expected /api/v1/map/:x/:y", http.StatusBadRequest)
		return
	}
	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}
	h := world.HexCoord{X: x, Y: y}

	type neighbor struct {
		X       int         `json:"x"`
		Y       int         `json:"y"`
		Terrain world.Biome `json:"terrain"`
		Locked  bool        `json:"locked"`
	}

	var resp map[string]any
	var found bool
	s.Sim.Read(func(wm *world.World, _ []*social.Settlement) {
		cell, err := wm.GetHex(h)
		if err != nil {
			return
		}
		found = true
		resp = map[string]any{
			"x":         x,
			"y":         y,
			"terrain":   wm.Terrain(h),
			"elevation": cell.E,
			"moisture":  cell.M,
			"locked":    cell.L,
		}
		if climate, err := wm.HexClimate(h); err == nil {
			resp["climate"] = climate.String()
		}
		if owner, ok := wm.LockedBy(h); ok {
			resp["locked_by"] = owner
		}
		if cell.S != nil {
			resp["settlement_id"] = *cell.S
			resp["settlement_name"] = cell.N
		}
		var ns []neighbor
		for _, n := range h.Neighbors() {
			if !wm.InBounds(n) {
				continue
			}
			ns = append(ns, neighbor{X: n.X, Y: n.Y, Terrain: wm.Terrain(n), Locked: wm.IsLocked(n)})
		}
		resp["neighbors"] = ns
	})
	if !found {
		http.Error(w, "hex not found", http.StatusNotFound)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	type settlementSummary struct {
		ID          uint64 `json:"id"`
		Name        string `json:"name"`
		X           int    `json:"x"`
		Y           int    `json:"y"`
		Tier        string `json:"tier"`
		Level       int    `json:"level"`
		Coastal     bool   `json:"coastal"`
		Coins       int    `json:"coins"`
		Buildings   int    `json:"buildings"`
		Storage     int    `json:"storage"`
		StorageUsed int    `json:"storage_used"`
	}

	var out []settlementSummary
	s.Sim.Read(func(_ *world.World, setts []*social.Settlement) {
		out = make([]settlementSummary, 0, len(setts))
		for _, st := range setts {
			out = append(out, settlementSummary{
				ID:          st.ID(),
				Name:        st.Name(),
				X:           st.Location().X,
				Y:           st.Location().Y,
				Tier:        st.Tier().String(),
				Level:       st.Level(),
				Coastal:     st.Coastal(),
				Coins:       st.Coins(),
				Buildings:   len(st.Buildings()),
				Storage:     st.Storage(),
				StorageUsed: st.StorageUsed(),
			})
		}
	})
	writeJSON(w, out)
}

// handleSettlementDetail returns the full view of one settlement with its
// buildings and their current notifications.
func (s *Server) handleSettlementDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/settlement/"), "/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid settlement id", http.StatusBadRequest)
		return
	}

	type buildingDetail struct {
		building.View
		Notification string `json:"notification,omitempty"`
	}
	type detail struct {
		social.View
		Buildings []buildingDetail `json:"buildings"`
	}

	var out *detail
	s.Sim.Read(func(_ *world.World, setts []*social.Settlement) {
		for _, st := range setts {
			if st.ID() != id {
				continue
			}
			d := &detail{View: st.View()}
			for _, b := range st.Buildings() {
				bd := buildingDetail{View: b.View()}
				if n := b.Diagnose(st); n != building.NotifyNone {
					bd.Notification = n.Message(b.Name(), st.Name())
				}
				d.Buildings = append(d.Buildings, bd)
			}
			out = d
			return
		}
	})
	if out == nil {
		http.Error(w, "settlement not found", http.StatusNotFound)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	category := r.URL.Query().Get("category")
	events := s.Sim.RecentEvents(limit, category)

	// Optional settlement filter: only events mentioning this settlement.
	if name := r.URL.Query().Get("settlement"); name != "" {
		filtered := events[:0]
		for _, e := range events {
			if strings.Contains(e.Description, name) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// handleBuildingAction applies POST /api/v1/building/:settlement/:kind/:action.
func (s *Server) handleBuildingAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/building/"), "/"), "/")
	if len(parts) != 3 {
		http.Error(w, "expected /api/v1/building/:settlement/:kind/:action", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid settlement id", http.StatusBadRequest)
		return
	}
	action, err := engine.ParseAction(parts[2])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.Sim.BuildingAction(id, parts[1], action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"settlement_id": id,
		"kind":          parts[1],
		"action":        action,
		"ok":            ok,
	})
}

func (s *Server) handleFound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Name      string   `json:"name"`
		X         *int     `json:"x"`
		Y         *int     `json:"y"`
		Tier      string   `json:"tier"`
		Biomes    []string `json:"biomes"`
		Buildings []string `json:"buildings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	cfg := engine.DefaultFounding()
	cfg.Name = req.Name
	if req.X != nil && req.Y != nil {
		cfg.Location = &world.HexCoord{X: *req.X, Y: *req.Y}
	}
	if req.Tier != "" {
		tier, ok := parseTier(req.Tier)
		if !ok {
			http.Error(w, "unknown tier (use: camp, village, city, metropolis)", http.StatusBadRequest)
			return
		}
		cfg.Tier = tier
	}
	for _, b := range req.Biomes {
		cfg.Biomes = append(cfg.Biomes, world.Biome(b))
	}
	if len(req.Buildings) > 0 {
		cfg.Buildings = req.Buildings
	}

	sett, err := s.Sim.FoundSettlement(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	var view social.View
	s.Sim.Read(func(*world.World, []*social.Settlement) { view = sett.View() })
	writeJSON(w, view)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SettlementID uint64 `json:"settlement_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.AbandonSettlement(req.SettlementID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"settlement_id": req.SettlementID, "message": "abandoned"})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SettlementID uint64 `json:"settlement_id"`
		Research     string `json:"research"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Research == "" {
		http.Error(w, "invalid json (need settlement_id and research)", http.StatusBadRequest)
		return
	}
	if err := s.Sim.GrantResearch(req.SettlementID, req.Research); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"settlement_id": req.SettlementID, "research": req.Research})
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SettlementID uint64 `json:"settlement_id"`
		Level        int    `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.SetSettlementLevel(req.SettlementID, req.Level); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"settlement_id": req.SettlementID, "level": req.Level})
}

func parseTier(name string) (world.Tier, bool) {
	for t := world.TierCamp; t <= world.TierMetropolis; t++ {
		if strings.EqualFold(t.String(), name) {
			return t, true
		}
	}
	return 0, false
}

// writeError maps engine errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrSettlementNotFound), errors.Is(err, engine.ErrBuildingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownAction), errors.Is(err, economy.ErrUnknownBuilding):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrLocationUnavailable), errors.Is(err, world.ErrNoLocation):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
