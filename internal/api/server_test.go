package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/engine"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

const adminKey = "s3cret"

type harness struct {
	srv  *Server
	h    http.Handler
	sett *social.Settlement
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cells := make([][]world.Cell, 10)
	for y := range cells {
		cells[y] = make([]world.Cell, 12)
		for x := range cells[y] {
			cells[y][x] = world.Cell{E: 0.5, M: 0.4}
		}
	}
	w, err := world.Restore(world.GenConfig{Width: 12, Height: 10, Erosion: 2},
		world.Seeds{Elevation: 1, Moisture: 2}, cells)
	require.NoError(t, err)

	sim := engine.NewSimulation(w, economy.DefaultCatalog(), 5)
	cfg := engine.DefaultFounding()
	cfg.Name = "Oakford"
	cfg.Location = &world.HexCoord{X: 4, Y: 4}
	sett, err := sim.FoundSettlement(cfg)
	require.NoError(t, err)

	srv := &Server{Sim: sim, Eng: engine.NewEngine(), AdminKey: adminKey}
	return &harness{srv: srv, h: srv.Handler(), sett: sett}
}

func (h *harness) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	decode(t, rec, &got)
	assert.EqualValues(t, 1, got["settlements"])
	assert.EqualValues(t, 12, got["width"])
	assert.Equal(t, "Spring", got["season"])
	assert.NotEmpty(t, got["fingerprint"])
}

func TestSettlementEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/settlements", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Oakford", list[0]["name"])
	assert.EqualValues(t, 7, list[0]["buildings"])

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/settlement/%d", h.sett.ID()), "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Name      string `json:"name"`
		Buildings []struct {
			Kind         string `json:"kind"`
			Notification string `json:"notification"`
		} `json:"buildings"`
	}
	decode(t, rec, &detail)
	assert.Equal(t, "Oakford", detail.Name)
	require.Len(t, detail.Buildings, 7)
	assert.Equal(t, economy.Marketplace, detail.Buildings[0].Kind)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/settlement/999", "", false).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/v1/settlement/abc", "", false).Code)
}

func TestStoppedBuildingShowsNotification(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/building/%d/farm/stop", h.sett.ID()), "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/settlement/%d", h.sett.ID()), "", false)
	var detail struct {
		Buildings []struct {
			Kind         string `json:"kind"`
			Stopped      bool   `json:"stopped"`
			Notification string `json:"notification"`
		} `json:"buildings"`
	}
	decode(t, rec, &detail)
	for _, b := range detail.Buildings {
		if b.Kind == "farm" {
			assert.True(t, b.Stopped)
			assert.Contains(t, b.Notification, "production is stopped")
		}
	}
}

func TestHexDetail(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/map/4/4", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var hex map[string]any
	decode(t, rec, &hex)
	assert.Equal(t, "grass", hex["terrain"])
	assert.Equal(t, "Temperate", hex["climate"])
	assert.Equal(t, "Oakford", hex["settlement_name"])
	assert.Equal(t, true, hex["locked"])
	assert.Len(t, hex["neighbors"], 6)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/map/40/4", "", false).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/v1/map/x/4", "", false).Code)
}

func TestBulkMap(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/map", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var m struct {
		Width  int `json:"width"`
		Height int `json:"height"`
		Hexes  []struct {
			SettlementID *uint64 `json:"settlement_id"`
		} `json:"hexes"`
	}
	decode(t, rec, &m)
	assert.Len(t, m.Hexes, m.Width*m.Height)
	claimed := 0
	for _, hx := range m.Hexes {
		if hx.SettlementID != nil {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestEventsByCategory(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/events?category="+engine.CategorySettlement, "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []engine.Event
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Description, "Oakford was founded")
}

func TestAdminAuth(t *testing.T) {
	h := newHarness(t)
	path := fmt.Sprintf("/api/v1/building/%d/farm/stop", h.sett.ID())

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, path, "", false).Code)

	h.srv.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, path, "", true).Code)
}

func TestBuildingActionErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		path string
		code int
	}{
		{fmt.Sprintf("/api/v1/building/%d/farm/explode", h.sett.ID()), http.StatusBadRequest},
		{fmt.Sprintf("/api/v1/building/%d/castle/upgrade", h.sett.ID()), http.StatusNotFound},
		{"/api/v1/building/999/farm/stop", http.StatusNotFound},
		{"/api/v1/building/1/farm", http.StatusBadRequest},
		{fmt.Sprintf("/api/v1/building/%d/castle/build", h.sett.ID()), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.code, h.do(t, http.MethodPost, tt.path, "", true).Code)
		})
	}
}

func TestDemolishMarketplaceRefused(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/building/%d/%s/demolish", h.sett.ID(), economy.Marketplace), "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	decode(t, rec, &got)
	assert.Equal(t, false, got["ok"])
}

func TestFoundAndAbandon(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/found", `{"name":"Frostmoor","x":9,"y":7,"tier":"city"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		ID   uint64 `json:"id"`
		Tier string `json:"tier"`
	}
	decode(t, rec, &view)
	assert.Equal(t, "City", view.Tier)

	rec = h.do(t, http.MethodPost, "/api/v1/found", `{"x":9,"y":7}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/found", `{"tier":"empire"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/abandon", fmt.Sprintf(`{"settlement_id":%d}`, view.ID), true)
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := h.srv.Sim.Settlement(view.ID)
	assert.False(t, ok)
}

func TestResearchAndLevel(t *testing.T) {
	h := newHarness(t)
	body := fmt.Sprintf(`{"settlement_id":%d,"research":"masonry"}`, h.sett.ID())
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/research", body, true).Code)

	body = fmt.Sprintf(`{"settlement_id":%d,"level":4}`, h.sett.ID())
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/level", body, true).Code)

	h.srv.Sim.Read(func(*world.World, []*social.Settlement) {
		assert.True(t, h.sett.HasResearch("masonry"))
		assert.Equal(t, 4, h.sett.Level())
	})

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/v1/research", `{}`, true).Code)
}

func TestSpeed(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/speed", `{"speed": 4}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, h.srv.Eng.Speed())

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/v1/speed", `{"speed": -1}`, true).Code)
}

func TestSnapshotWithoutDB(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/api/v1/snapshot", "", true).Code)
}

func TestStreamRequiresRelayKey(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/api/v1/stream", "", false).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per IP")
	assert.Greater(t, rl.RetryAfter("10.0.0.1"), 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestWebSocketStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?category=" + engine.CategoryAdmin
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Nothing admin has happened yet, so the first frame is live.
	require.NoError(t, h.srv.Sim.GrantResearch(h.sett.ID(), "alchemy"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e engine.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, engine.CategoryAdmin, e.Category)
	assert.Contains(t, e.Description, "alchemy")
}
