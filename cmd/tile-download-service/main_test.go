package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/geoyee/regiontiles/internal/logger"
)

const campGeoJSON = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"name": "Camp"},
   "geometry": {"type": "Point", "coordinates": [-79.95, 40.05]}}
]}`

func testServer(t *testing.T, host, apiKey string) *Server {
	t.Helper()
	cfg := &Config{}
	cfg.HTTP.Server.CORSOrigin = "*"
	cfg.Tiles = Tiles{
		APIKey:     apiKey,
		Host:       host,
		OutputRoot: t.TempDir(),
		MaxTiles:     1000,
		Threads:      2,
		Timeout:      5,
		UserAgent:    "regiontiles-test",
		MaxZoom:      18,
		MaxRequested: 100000,
		MaxThreads:   4,
	}
	return NewServer(cfg, logger.NewNop())
}

func planBody(t *testing.T, extra map[string]interface{}) io.Reader {
	t.Helper()
	body := map[string]interface{}{
		"min_zoom":   1,
		"max_zoom":   3,
		"lat_margin": 0.05,
		"lon_margin": 0.05,
		"geometry":   json.RawMessage(campGeoJSON),
	}
	for k, v := range extra {
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return w, resp
}

func TestHandleHealth(t *testing.T) {
	h := testServer(t, "", "").Router()
	w, resp := do(t, h, http.MethodGet, "/api/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !resp.Success {
		t.Error("Expected success to be true")
	}
}

func TestHandlePlanSummary(t *testing.T) {
	h := testServer(t, "", "").Router()
	w, resp := do(t, h, http.MethodPost, "/api/plan", planBody(t, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatal("Expected Data to be a map")
	}
	if data["planned"].(float64) != 3 || data["requested"].(float64) != 3 {
		t.Errorf("plan = %v, want 3 planned of 3", data)
	}
	if data["highest_zoom"].(float64) != 3 {
		t.Errorf("highest_zoom = %v, want 3", data["highest_zoom"])
	}
	if zooms := data["zooms"].([]interface{}); len(zooms) != 3 {
		t.Errorf("zooms = %v, want 3 entries", zooms)
	}
}

func TestHandlePlanTightBudget(t *testing.T) {
	h := testServer(t, "", "").Router()
	w, resp := do(t, h, http.MethodPost, "/api/plan", planBody(t, map[string]interface{}{"max_tiles": 1}))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["planned"].(float64) != 0 || data["skipped"].(float64) != 3 {
		t.Errorf("plan = %v, want 0 planned and 3 skipped", data)
	}
	if data["highest_zoom"] != nil {
		t.Errorf("highest_zoom = %v, want null", data["highest_zoom"])
	}
}

func TestHandlePlanGeoJSON(t *testing.T) {
	h := testServer(t, "", "").Router()
	req := httptest.NewRequest(http.MethodPost, "/api/plan?format=geojson", planBody(t, nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("UnmarshalFeatureCollection: %v", err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("features = %d, want 3", len(fc.Features))
	}
	for _, f := range fc.Features {
		if f.Properties.MustString("set", "") != "fetch" {
			t.Errorf("feature properties = %v", f.Properties)
		}
		if f.Geometry.GeoJSONType() != "Polygon" {
			t.Errorf("geometry type = %s, want Polygon", f.Geometry.GeoJSONType())
		}
	}
}

func TestHandlePlanBadRequests(t *testing.T) {
	h := testServer(t, "", "").Router()

	tests := []struct {
		name string
		body io.Reader
	}{
		{"invalid json", strings.NewReader("{")},
		{"missing geometry", strings.NewReader(`{"min_zoom": 1}`)},
		{"bad geometry", strings.NewReader(`{"geometry": "not an object"}`)},
		{"unknown style", planBody(t, map[string]interface{}{"style": "watercolor"})},
		{"escaping subdir", planBody(t, map[string]interface{}{"subdir": "../elsewhere"})},
		{"negative margin", planBody(t, map[string]interface{}{"lat_margin": -1})},
		{"inverted zoom range", planBody(t, map[string]interface{}{"min_zoom": 5, "max_zoom": 2})},
		{"zoom beyond grid", planBody(t, map[string]interface{}{"max_zoom": 31})},
		{"zoom above service limit", planBody(t, map[string]interface{}{"max_zoom": 19})},
		{"too many tiles", planBody(t, map[string]interface{}{
			"max_zoom": 12, "lat_margin": 80, "lon_margin": 179,
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, h, http.MethodPost, "/api/plan", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if resp.Success {
				t.Error("Expected success to be false")
			}
		})
	}
}

func TestDownloadLifecycle(t *testing.T) {
	var hits atomic.Int64
	tiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("png"))
	}))
	defer tiles.Close()

	h := testServer(t, tiles.URL, "key").Router()

	w, resp := do(t, h, http.MethodPost, "/api/download", planBody(t, map[string]interface{}{"id": "trip"}))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}
	if resp.Data.(map[string]interface{})["task_id"] != "trip" {
		t.Errorf("task_id = %v", resp.Data)
	}

	w, _ = do(t, h, http.MethodPost, "/api/download", planBody(t, map[string]interface{}{"id": "trip"}))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate id: Expected status %d, got %d", http.StatusConflict, w.Code)
	}

	var status map[string]interface{}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, resp = do(t, h, http.MethodGet, "/api/status/trip", nil)
		status = resp.Data.(map[string]interface{})
		if status["status"] == string(StatusComplete) || status["status"] == string(StatusFailed) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status["status"] != string(StatusComplete) {
		t.Fatalf("task status = %v, want complete", status)
	}
	if status["fetched"].(float64) != 3 || status["progress"].(float64) != 100 {
		t.Errorf("status = %v, want 3 fetched at 100%%", status)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("tile server hits = %d, want 3", got)
	}

	_, resp = do(t, h, http.MethodGet, "/api/tasks", nil)
	if list := resp.Data.([]interface{}); len(list) != 1 {
		t.Errorf("tasks = %v, want 1", list)
	}

	w, _ = do(t, h, http.MethodPost, "/api/stop/trip", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("stop finished task: Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w, _ = do(t, h, http.MethodDelete, "/api/delete/trip", nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete: Expected status %d, got %d", http.StatusOK, w.Code)
	}
	w, _ = do(t, h, http.MethodGet, "/api/status/trip", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status after delete: Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestDownloadWithoutAPIKey(t *testing.T) {
	h := testServer(t, "", "").Router()
	w, resp := do(t, h, http.MethodPost, "/api/download", planBody(t, nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(resp.Message, "api key") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestUnknownTask(t *testing.T) {
	h := testServer(t, "", "").Router()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/status/nope"},
		{http.MethodPost, "/api/stop/nope"},
		{http.MethodDelete, "/api/delete/nope"},
	} {
		w, _ := do(t, h, tc.method, tc.path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: Expected status %d, got %d", tc.method, tc.path, http.StatusNotFound, w.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := testServer(t, "", "").Router()
	w, resp := do(t, h, http.MethodGet, "/api/download", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
	if resp.Success {
		t.Error("Expected success to be false")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testServer(t, "", "").Router()
	req := httptest.NewRequest(http.MethodOptions, "/api/download", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := testServer(t, "", "").Router()
	do(t, h, http.MethodPost, "/api/plan", planBody(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), "regiontiles_plan_highest_zoom 3") {
		t.Error("metrics output lacks the plan gauge")
	}
}

func TestToConfigDefaults(t *testing.T) {
	tiles := Tiles{APIKey: "k", Host: "h", OutputRoot: "/srv/tiles", MaxTiles: 500, Threads: 3, Timeout: 9}
	req := &DownloadRequest{}

	config, err := req.ToConfig(tiles)
	if err != nil {
		t.Fatalf("ToConfig: %v", err)
	}
	if config.Style != "outdoors" || config.OutputDir != "/srv/tiles/outdoors" {
		t.Errorf("style=%s outdir=%s", config.Style, config.OutputDir)
	}
	if config.MaxTiles != 500 || config.MinZoom != defaultMinZoom || config.MaxZoom != defaultMaxZoom {
		t.Errorf("config = %+v", config)
	}
	if config.LatMargin != defaultMargin || config.LonMargin != defaultMargin {
		t.Errorf("margins = %f/%f", config.LatMargin, config.LonMargin)
	}
	if config.ReportFile != "" {
		t.Errorf("ReportFile = %q, want empty", config.ReportFile)
	}

	zero := 0
	req = &DownloadRequest{MinZoom: &zero, Subdir: "trips/2024", Report: true}
	config, err = req.ToConfig(tiles)
	if err != nil {
		t.Fatalf("ToConfig: %v", err)
	}
	if config.MinZoom != 0 || config.OutputDir != "/srv/tiles/trips/2024" || config.ReportFile == "" {
		t.Errorf("config = %+v", config)
	}
}

func TestToConfigThreadsClamped(t *testing.T) {
	tiles := Tiles{OutputRoot: "/srv/tiles", MaxTiles: 500, Threads: 3, MaxThreads: 8}

	tests := []struct {
		requested int
		want      int
	}{
		{0, 3},
		{6, 6},
		{8, 8},
		{100000, 8},
	}

	for _, tt := range tests {
		req := &DownloadRequest{Threads: tt.requested}
		config, err := req.ToConfig(tiles)
		if err != nil {
			t.Fatalf("ToConfig: %v", err)
		}
		if config.Threads != tt.want {
			t.Errorf("threads=%d: got %d, want %d", tt.requested, config.Threads, tt.want)
		}
	}
}

func TestToConfigZoomLimits(t *testing.T) {
	tiles := Tiles{OutputRoot: "/srv/tiles", MaxTiles: 500, Threads: 3, MaxZoom: 16}

	tests := []struct {
		minZoom, maxZoom int
		wantErr          bool
	}{
		{0, 16, false},
		{3, 3, false},
		{0, 17, true},
		{-1, 5, true},
		{6, 5, true},
		{0, 40, true},
	}

	for _, tt := range tests {
		minZoom, maxZoom := tt.minZoom, tt.maxZoom
		req := &DownloadRequest{MinZoom: &minZoom, MaxZoom: &maxZoom}
		_, err := req.ToConfig(tiles)
		if (err != nil) != tt.wantErr {
			t.Errorf("zoom %d-%d: error = %v, wantErr %v", tt.minZoom, tt.maxZoom, err, tt.wantErr)
		}
	}
}
