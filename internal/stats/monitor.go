package stats

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/geoyee/regiontiles/internal/logger"
	"github.com/geoyee/regiontiles/internal/metrics"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/util"
)

type StatsMonitor struct {
	mu     sync.RWMutex
	stats  *model.DownloadStats
	bar    *progressbar.ProgressBar
	logger logger.Logger
}

func NewStatsMonitor(l logger.Logger) *StatsMonitor {
	return &StatsMonitor{
		stats:  &model.DownloadStats{},
		logger: l,
	}
}

func (sm *StatsMonitor) InitStats(totalTiles int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stats = &model.DownloadStats{
		Total:     int64(totalTiles),
		StartTime: time.Now(),
	}
}

func (sm *StatsMonitor) current() *model.DownloadStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stats
}

// AttachProgressBar renders per-tile progress to w. Call after InitStats.
func (sm *StatsMonitor) AttachProgressBar(w io.Writer) {
	sm.bar = progressbar.NewOptions64(sm.current().Total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Downloading tiles"),
		progressbar.OptionSetItsString("tiles"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
	)
}

func (sm *StatsMonitor) WorkerStarted() {
	atomic.AddInt32(&sm.current().ActiveWorkers, 1)
}

func (sm *StatsMonitor) WorkerDone() {
	atomic.AddInt32(&sm.current().ActiveWorkers, -1)
}

// Record counts one completed tile. Safe for concurrent use.
func (sm *StatsMonitor) Record(result string, bytes int64) {
	s := sm.current()
	switch result {
	case metrics.ResultFetched:
		atomic.AddInt64(&s.Fetched, 1)
		atomic.AddInt64(&s.BytesTotal, bytes)
		metrics.BytesWritten.Add(float64(bytes))
	case metrics.ResultCached:
		atomic.AddInt64(&s.Cached, 1)
	case metrics.ResultFailed:
		atomic.AddInt64(&s.Failed, 1)
	}
	metrics.TileResults.WithLabelValues(result).Inc()

	if sm.bar != nil {
		_ = sm.bar.Add(1)
	}
}

// Snapshot copies the counters for status reporting. Safe to call while
// workers are recording.
func (sm *StatsMonitor) Snapshot() model.DownloadStats {
	s := sm.current()
	return model.DownloadStats{
		Total:         s.Total,
		Fetched:       atomic.LoadInt64(&s.Fetched),
		Cached:        atomic.LoadInt64(&s.Cached),
		Failed:        atomic.LoadInt64(&s.Failed),
		BytesTotal:    atomic.LoadInt64(&s.BytesTotal),
		ActiveWorkers: atomic.LoadInt32(&s.ActiveWorkers),
		StartTime:     s.StartTime,
	}
}

func (sm *StatsMonitor) Finish() {
	if sm.bar != nil {
		_ = sm.bar.Finish()
	}
}

func (sm *StatsMonitor) PrintFinalStats() {
	s := sm.Snapshot()
	duration := time.Since(s.StartTime)
	processed := s.Fetched + s.Cached + s.Failed
	var percent float64
	if s.Total > 0 {
		percent = float64(s.Fetched+s.Cached) / float64(s.Total) * 100
	} else {
		percent = 100
	}

	sm.logger.Info("download complete",
		"duration", duration.Round(time.Millisecond).String(),
		"planned", s.Total,
		"processed", processed,
		"fetched", s.Fetched,
		"cached", s.Cached,
		"failed", s.Failed,
		"downloaded", util.FormatBytes(s.BytesTotal),
		"completion", percentString(percent),
	)

	if duration.Seconds() > 0 && s.Fetched > 0 {
		sm.logger.Info("average speed",
			"kb_per_sec", float64(s.BytesTotal)/1024/duration.Seconds(),
			"tiles_per_sec", float64(s.Fetched)/duration.Seconds(),
		)
	}
}
