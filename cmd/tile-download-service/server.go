package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoyee/regiontiles/internal/calculator"
	"github.com/geoyee/regiontiles/internal/download"
	"github.com/geoyee/regiontiles/internal/geometry"
	"github.com/geoyee/regiontiles/internal/logger"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/planner"
	"github.com/geoyee/regiontiles/internal/provider"
	"github.com/geoyee/regiontiles/internal/region"
)

const (
	defaultMinZoom = 1
	defaultMaxZoom = 15
	defaultMargin  = 0.1
)

// DownloadRequest describes regions as inline GeoJSON plus optional
// overrides of the service defaults.
type DownloadRequest struct {
	ID        string          `json:"id,omitempty"`
	Style     string          `json:"style,omitempty"`
	MaxTiles  *int            `json:"max_tiles,omitempty"`
	MinZoom   *int            `json:"min_zoom,omitempty"`
	MaxZoom   *int            `json:"max_zoom,omitempty"`
	LatMargin *float64        `json:"lat_margin,omitempty"`
	LonMargin *float64        `json:"lon_margin,omitempty"`
	Threads   int             `json:"threads,omitempty"`
	RateLimit int             `json:"rate_limit,omitempty"`
	Subdir    string          `json:"subdir,omitempty"`
	Report    bool            `json:"report,omitempty"`
	Geometry  json.RawMessage `json:"geometry"`
}

// ToConfig applies the service defaults. The output directory is always
// inside the configured root.
func (r *DownloadRequest) ToConfig(tiles Tiles) (*model.Config, error) {
	config := &model.Config{
		APIKey:    tiles.APIKey,
		Style:     r.Style,
		Host:      tiles.Host,
		MaxTiles:  tiles.MaxTiles,
		MinZoom:   defaultMinZoom,
		MaxZoom:   defaultMaxZoom,
		LatMargin: defaultMargin,
		LonMargin: defaultMargin,
		Threads:   tiles.Threads,
		Timeout:   tiles.Timeout,
		RateLimit: tiles.RateLimit,
		UserAgent: tiles.UserAgent,
		UseHTTP2:  tiles.UseHTTP2,
		ProxyURL:  tiles.ProxyURL,
	}
	if config.Style == "" {
		config.Style = provider.Styles[0]
	}
	if !provider.IsValidStyle(config.Style) {
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownStyle, config.Style)
	}
	if r.MaxTiles != nil {
		config.MaxTiles = *r.MaxTiles
	}
	if r.MinZoom != nil {
		config.MinZoom = *r.MinZoom
	}
	if r.MaxZoom != nil {
		config.MaxZoom = *r.MaxZoom
	}
	if r.LatMargin != nil {
		config.LatMargin = *r.LatMargin
	}
	if r.LonMargin != nil {
		config.LonMargin = *r.LonMargin
	}
	if err := calculator.ValidateZoomRange(config.MinZoom, config.MaxZoom); err != nil {
		return nil, fmt.Errorf("%w: %d-%d", err, config.MinZoom, config.MaxZoom)
	}
	if tiles.MaxZoom > 0 && config.MaxZoom > tiles.MaxZoom {
		return nil, fmt.Errorf("max_zoom %d exceeds the service limit of %d", config.MaxZoom, tiles.MaxZoom)
	}
	if err := calculator.ValidateMargin(config.Margin()); err != nil {
		return nil, err
	}
	if r.Threads > 0 {
		config.Threads = r.Threads
	}
	if tiles.MaxThreads > 0 {
		config.Threads = min(config.Threads, tiles.MaxThreads)
	}
	if r.RateLimit > 0 {
		config.RateLimit = r.RateLimit
	}

	subdir := r.Subdir
	if subdir == "" {
		subdir = config.Style
	}
	if !filepath.IsLocal(subdir) {
		return nil, fmt.Errorf("subdir %q must be a relative path inside the output root", r.Subdir)
	}
	config.OutputDir = filepath.Join(tiles.OutputRoot, subdir)
	if r.Report {
		config.ReportFile = "report.json"
	}
	return config, nil
}

func (r *DownloadRequest) Regions(m model.Margin, l logger.Logger) (*region.Set, error) {
	if len(r.Geometry) == 0 {
		return nil, fmt.Errorf("geometry is required")
	}
	placemarks, err := geometry.ParseGeoJSON(bytes.NewReader(r.Geometry))
	if err != nil {
		return nil, err
	}
	return region.FromPlacemarks(placemarks, m, l), nil
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type PlanResponse struct {
	Requested   int                   `json:"requested"`
	Planned     int                   `json:"planned"`
	Skipped     int                   `json:"skipped"`
	HighestZoom *int                  `json:"highest_zoom"`
	Regions     int                   `json:"regions"`
	Zooms       []planner.ZoomSummary `json:"zooms"`
}

type Server struct {
	cfg         *Config
	logger      logger.Logger
	taskManager *TaskManager
}

func NewServer(cfg *Config, l logger.Logger) *Server {
	return &Server{
		cfg:         cfg,
		logger:      l,
		taskManager: NewTaskManager(),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/plan", s.handlePlan).Methods(http.MethodPost)
	api.HandleFunc("/download", s.handleDownload).Methods(http.MethodPost)
	api.HandleFunc("/status/{id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/stop/{id}", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/tasks", s.handleTasks).Methods(http.MethodGet)
	api.HandleFunc("/delete/{id}", s.handleDelete).Methods(http.MethodDelete)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondJSON(w, http.StatusMethodNotAllowed, APIResponse{
			Success: false,
			Message: "Method not allowed",
		})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondJSON(w, http.StatusNotFound, APIResponse{
			Success: false,
			Message: "Not found",
		})
	})

	return s.corsMiddleware(r)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.HTTP.Server.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.respondJSON(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Message: msg,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "healthy", "time": time.Now().Format(time.RFC3339)},
	})
}

// decodeRequest returns false after writing a 400 response.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*model.Config, *region.Set, *DownloadRequest, bool) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return nil, nil, nil, false
	}

	config, err := req.ToConfig(s.cfg.Tiles)
	if err != nil {
		s.badRequest(w, err.Error())
		return nil, nil, nil, false
	}

	regions, err := req.Regions(config.Margin(), s.logger)
	if err != nil {
		s.badRequest(w, fmt.Sprintf("Invalid geometry: %v", err))
		return nil, nil, nil, false
	}
	if limit := s.cfg.Tiles.MaxRequested; limit > 0 {
		if n := planner.RequestedUpperBound(regions, config.MinZoom, config.MaxZoom); n > limit {
			s.badRequest(w, fmt.Sprintf("Request covers up to %d tiles, the service limit is %d", n, limit))
			return nil, nil, nil, false
		}
	}
	return config, regions, &req, true
}

// handlePlan runs the planner only. With ?format=geojson the planned tiles
// are returned as a FeatureCollection of tile outlines.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	config, regions, _, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	plan := download.NewDownloader(config, s.logger).PlanOnly(regions)

	if r.URL.Query().Get("format") == "geojson" {
		data, err := json.Marshal(planFeatureCollection(plan))
		if err != nil {
			s.respondJSON(w, http.StatusInternalServerError, APIResponse{Success: false, Message: err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(data)
		return
	}

	resp := PlanResponse{
		Requested: plan.Requested(),
		Planned:   plan.ToFetch.Len(),
		Skipped:   plan.Skipped.Len(),
		Regions:   regions.Len(),
		Zooms:     planner.Summarize(plan),
	}
	if plan.HasHighestZoom() {
		z := plan.HighestZoom
		resp.HighestZoom = &z
	}
	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    resp,
	})
}

func planFeatureCollection(plan *model.TilePlan) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	add := func(set model.TileSet, name string) {
		for _, t := range set.Slice() {
			f := geojson.NewFeature(t.Bound().ToPolygon())
			f.Properties["z"] = t.Z
			f.Properties["x"] = t.X
			f.Properties["y"] = t.Y
			f.Properties["set"] = name
			fc.Append(f)
		}
	}
	add(plan.ToFetch, "fetch")
	add(plan.Skipped, "skipped")
	return fc
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Tiles.APIKey == "" {
		s.badRequest(w, "No tile server api key is configured (TILES_API_KEY)")
		return
	}

	config, regions, req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	taskID := req.ID
	if taskID == "" {
		taskID = fmt.Sprintf("task_%d", time.Now().UnixNano())
	}

	task, err := s.taskManager.CreateTask(taskID, config, regions)
	if err != nil {
		s.respondJSON(w, http.StatusConflict, APIResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	go s.runDownloadTask(task)

	s.respondJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Message: "Download task created",
		Data:    map[string]string{"task_id": taskID},
	})
}

func (s *Server) runDownloadTask(task *Task) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := download.NewDownloader(task.config, s.logger)
	if err := d.Init(); err != nil {
		task.fail(fmt.Errorf("initialization failed: %w", err))
		return
	}
	task.start(d, cancel)

	plan, err := d.Run(ctx, task.regions)
	task.complete(plan, err)

	info := task.Info()
	s.logger.Info("task finished", "task", info.ID, "status", info.Status, "fetched", info.Fetched, "failed", info.Failed)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(mux.Vars(r)["id"])
	if !ok {
		s.respondJSON(w, http.StatusNotFound, APIResponse{
			Success: false,
			Message: "Task not found",
		})
		return
	}

	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    task.Info(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(mux.Vars(r)["id"])
	if !ok {
		s.respondJSON(w, http.StatusNotFound, APIResponse{
			Success: false,
			Message: "Task not found",
		})
		return
	}

	if !task.cancel() {
		s.badRequest(w, fmt.Sprintf("Task is not running (current status: %s)", task.Info().Status))
		return
	}

	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Task stopped",
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.taskManager.ListTasks(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.taskManager.DeleteTask(mux.Vars(r)["id"]) {
		s.respondJSON(w, http.StatusOK, APIResponse{
			Success: true,
			Message: "Task deleted",
		})
	} else {
		s.respondJSON(w, http.StatusNotFound, APIResponse{
			Success: false,
			Message: "Task not found",
		})
	}
}
