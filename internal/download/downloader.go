package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geoyee/regiontiles/internal/cache"
	"github.com/geoyee/regiontiles/internal/calculator"
	"github.com/geoyee/regiontiles/internal/client"
	"github.com/geoyee/regiontiles/internal/logger"
	"github.com/geoyee/regiontiles/internal/metrics"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/planner"
	"github.com/geoyee/regiontiles/internal/provider"
	"github.com/geoyee/regiontiles/internal/region"
	"github.com/geoyee/regiontiles/internal/report"
	"github.com/geoyee/regiontiles/internal/stats"
	"github.com/geoyee/regiontiles/internal/util"
)

type Downloader struct {
	Config        *model.Config
	Logger        logger.Logger
	HTTPClient    *http.Client
	Provider      *provider.Provider
	Cache         cache.TileCache
	Fetcher       *Fetcher
	StatsMonitor  *stats.StatsMonitor
	ReportManager *report.ReportManager
	ErrorStats    *util.ErrorStats
	WorkerPool    *WorkerPool
	// Progress receives the progress bar; nil disables it.
	Progress io.Writer

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func NewDownloader(config *model.Config, l logger.Logger) *Downloader {
	return &Downloader{
		Config:     config,
		Logger:     l,
		ErrorStats: util.NewErrorStats(),
	}
}

// Init wires the provider, transport, cache and fetcher. Collaborators set
// before Init are kept, and calling Init again is a no-op.
func (d *Downloader) Init() error {
	if d.Fetcher != nil {
		return nil
	}
	if d.Provider == nil {
		p, err := provider.New(d.Config.Host, d.Config.Style, d.Config.APIKey)
		if err != nil {
			return err
		}
		d.Provider = p
	}

	timeout := time.Duration(d.Config.Timeout) * time.Second
	if d.HTTPClient == nil {
		c, err := client.NewHTTPClient(client.Config{
			Timeout:  timeout,
			ProxyURL: d.Config.ProxyURL,
			UseHTTP2: d.Config.UseHTTP2,
		})
		if err != nil {
			return err
		}
		d.HTTPClient = c
	}
	if d.Config.ProxyURL != "" {
		d.Logger.Info("using proxy", "proxy", d.Config.ProxyURL)
	}

	if d.Cache == nil {
		d.Cache = cache.NewFilesystemCache(d.Config.OutputDir)
	}

	d.Fetcher = NewFetcher(d.HTTPClient, d.Provider, d.Cache, FetcherConfig{
		UserAgent: d.Config.UserAgent,
		Timeout:   timeout,
		RateLimit: d.Config.RateLimit,
	})
	if d.Config.RateLimit > 0 {
		d.Logger.Info("rate limit enabled", "requests_per_second", d.Config.RateLimit)
	}

	d.StatsMonitor = stats.NewStatsMonitor(d.Logger)
	d.ReportManager = report.NewReportManager(d.Config.OutputDir, d.Config.ReportFile)
	return nil
}

// PlanOnly computes the fetch plan without touching the network.
func (d *Downloader) PlanOnly(regions *region.Set) *model.TilePlan {
	cfg := d.Config
	if cfg.MaxTiles <= 0 {
		d.Logger.Warn("max tiles is not positive, nothing will be fetched", "max_tiles", cfg.MaxTiles)
	}
	if err := calculator.ValidateZoomRange(cfg.MinZoom, cfg.MaxZoom); err != nil {
		d.Logger.Warn("zoom range outside the usual bounds", "min_zoom", cfg.MinZoom, "max_zoom", cfg.MaxZoom, "error", err)
	}
	if regions == nil || regions.Len() == 0 {
		d.Logger.Warn("no regions to plan")
	}

	plan := planner.Plan(regions, cfg.MinZoom, cfg.MaxZoom, cfg.MaxTiles)

	metrics.TilesPlanned.WithLabelValues("fetch").Set(float64(plan.ToFetch.Len()))
	metrics.TilesPlanned.WithLabelValues("skipped").Set(float64(plan.Skipped.Len()))
	metrics.HighestZoom.Set(float64(plan.HighestZoom))

	d.Logger.Info(fmt.Sprintf("Fetching %d tiles out of requested %d", plan.ToFetch.Len(), plan.Requested()))
	if plan.HasHighestZoom() {
		d.Logger.Info(fmt.Sprintf("Highest zoom level included is %d", plan.HighestZoom))
	} else {
		d.Logger.Info("No zoom level fit within the tile budget")
	}
	for _, s := range planner.Summarize(plan) {
		d.Logger.Debug("zoom summary", "zoom", s.Zoom, "fetch", s.Fetch, "skipped", s.Skipped)
	}
	return plan
}

// Run plans and then fetches every planned tile. Individual tile failures are
// logged and reported but do not make Run fail.
func (d *Downloader) Run(ctx context.Context, regions *region.Set) (*model.TilePlan, error) {
	// A dry run needs neither the key nor the transport.
	if d.Config.DryRun {
		if !provider.IsValidStyle(d.Config.Style) {
			return nil, fmt.Errorf("%w: %q", provider.ErrUnknownStyle, d.Config.Style)
		}
		return d.PlanOnly(regions), nil
	}

	defer d.Cleanup()
	if err := d.Init(); err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	plan := d.PlanOnly(regions)
	d.ReportManager.RecordPlan(d.Config, regions.Len(), plan)

	if err := util.EnsureDirExists(d.Config.OutputDir); err != nil {
		return plan, fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	tiles := plan.ToFetch.Slice()
	d.StatsMonitor.InitStats(len(tiles))
	if d.Progress != nil {
		d.StatsMonitor.AttachProgressBar(d.Progress)
	}
	d.Logger.Info("starting download",
		"tiles", len(tiles),
		"output_dir", d.Config.OutputDir,
		"style", d.Provider.Style(),
		"threads", d.Config.Threads,
		"http2", d.Config.UseHTTP2,
	)

	d.WorkerPool = NewWorkerPool(d.Config.Threads)
	d.WorkerPool.Start(func(task *model.DownloadTask) {
		d.DownloadTask(ctx, task)
	})

	submitted := 0
	for _, tile := range tiles {
		if d.stopped.Load() {
			break
		}
		if !d.WorkerPool.SubmitTask(ctx, d.Fetcher.NewTask(tile)) {
			break
		}
		submitted++
	}
	d.WorkerPool.Stop()
	d.StatsMonitor.Finish()

	if submitted < len(tiles) {
		d.Logger.Warn("download stopped early", "submitted", submitted, "planned", len(tiles))
	}
	d.StatsMonitor.PrintFinalStats()

	return plan, ctx.Err()
}

// DownloadTask fetches one tile and records the outcome.
func (d *Downloader) DownloadTask(ctx context.Context, task *model.DownloadTask) {
	if d.stopped.Load() || ctx.Err() != nil {
		return
	}

	d.StatsMonitor.WorkerStarted()
	defer d.StatsMonitor.WorkerDone()

	result, n, err := d.Fetcher.FetchTask(ctx, task)
	if err != nil {
		d.ErrorStats.RecordError(err)
		d.ReportManager.MarkTileFailed(task.Tile, err.Error())
		d.Logger.Warn(fmt.Sprintf("Failed to download tile %s", util.TileKey(task.Tile)), "error", err)
	}
	d.StatsMonitor.Record(string(result), n)
}

// Stop cancels an in-flight Run.
func (d *Downloader) Stop() {
	d.stopped.Store(true)
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
}

func (d *Downloader) Stopped() bool {
	return d.stopped.Load()
}

// Cleanup closes idle connections, logs the error summary and writes the
// report when one was requested.
func (d *Downloader) Cleanup() {
	if d.HTTPClient != nil {
		client.CloseIdle(d.HTTPClient)
	}
	d.printErrorStats()

	if d.ReportManager == nil || d.StatsMonitor == nil || d.Config.DryRun {
		return
	}
	d.ReportManager.Finalize(d.StatsMonitor.Snapshot())
	if err := d.ReportManager.Save(); err != nil {
		d.Logger.Error("failed to save report", "error", err)
	} else if d.ReportManager.Enabled() {
		d.Logger.Info("report written", "path", d.ReportManager.Path())
	}
}

func (d *Downloader) printErrorStats() {
	if !d.ErrorStats.HasErrors() {
		return
	}
	for reason, count := range d.ErrorStats.GetErrorStats() {
		d.Logger.Warn("tile errors", "reason", reason, "count", count)
	}
}
