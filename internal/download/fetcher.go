package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/time/rate"

	"github.com/geoyee/regiontiles/internal/cache"
	"github.com/geoyee/regiontiles/internal/client"
	"github.com/geoyee/regiontiles/internal/metrics"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/provider"
	"github.com/geoyee/regiontiles/internal/util"
)

// Result is the outcome of fetching one tile.
type Result string

const (
	ResultFetched Result = metrics.ResultFetched
	ResultCached  Result = metrics.ResultCached
	ResultFailed  Result = metrics.ResultFailed
)

// FetchError describes a failed tile. StatusCode is zero for transport errors.
// Reason never contains the api key.
type FetchError struct {
	Tile       maptile.Tile
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tile %s: HTTP %d %s", util.TileKey(e.Tile), e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("tile %s: %s", util.TileKey(e.Tile), e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit int
}

// Fetcher downloads single tiles into a cache, one attempt each.
type Fetcher struct {
	httpClient *http.Client
	provider   *provider.Provider
	cache      cache.TileCache
	limiter    *rate.Limiter
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, p *provider.Provider, tc cache.TileCache, cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		httpClient: httpClient,
		provider:   p,
		cache:      tc,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
	}
	if f.timeout <= 0 {
		f.timeout = client.DefaultTimeout
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	return f
}

// NewTask resolves the URL and cache location of a tile.
func (f *Fetcher) NewTask(tile maptile.Tile) *model.DownloadTask {
	task := &model.DownloadTask{
		Tile: tile,
		URL:  f.provider.TileURL(tile),
	}
	if p, ok := f.cache.(interface{ Path(maptile.Tile) string }); ok {
		task.SavePath = p.Path(tile)
	}
	return task
}

func (f *Fetcher) Fetch(ctx context.Context, tile maptile.Tile) (Result, int64, error) {
	return f.FetchTask(ctx, f.NewTask(tile))
}

// FetchTask returns ResultCached without touching the network when the tile
// is already stored. Otherwise it issues exactly one GET.
func (f *Fetcher) FetchTask(ctx context.Context, task *model.DownloadTask) (Result, int64, error) {
	cached, err := f.cache.Has(task.Tile)
	if err != nil {
		return ResultFailed, 0, &FetchError{Tile: task.Tile, Reason: "cache lookup: " + err.Error(), Err: err}
	}
	if cached {
		return ResultCached, 0, nil
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return ResultFailed, 0, &FetchError{Tile: task.Tile, Reason: "rate limit: " + err.Error(), Err: err}
		}
	}

	data, err := f.get(ctx, task)
	if err != nil {
		return ResultFailed, 0, err
	}

	if err := f.cache.Set(task.Tile, data); err != nil {
		return ResultFailed, 0, &FetchError{Tile: task.Tile, Reason: err.Error(), Err: err}
	}
	return ResultFetched, int64(len(data)), nil
}

func (f *Fetcher) get(ctx context.Context, task *model.DownloadTask) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return nil, &FetchError{Tile: task.Tile, Reason: f.provider.Redact(err.Error()), Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/png,image/*;q=0.8,*/*;q=0.5")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &FetchError{Tile: task.Tile, Reason: f.provider.Redact(err.Error()), Err: err}
	}
	defer client.SafeCloseResponse(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Tile:       task.Tile,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Tile: task.Tile, Reason: "failed to read response: " + f.provider.Redact(err.Error()), Err: err}
	}
	return data, nil
}
