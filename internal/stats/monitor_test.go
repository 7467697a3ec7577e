package stats

import (
	"bytes"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/geoyee/regiontiles/internal/logger"
	"github.com/geoyee/regiontiles/internal/metrics"
)

func TestRecordCountsResults(t *testing.T) {
	sm := NewStatsMonitor(logger.NewNop())
	sm.InitStats(6)

	fetchedBefore := testutil.ToFloat64(metrics.TileResults.WithLabelValues(metrics.ResultFetched))

	var wg sync.WaitGroup
	for _, r := range []string{
		metrics.ResultFetched, metrics.ResultFetched, metrics.ResultFetched,
		metrics.ResultCached, metrics.ResultCached,
		metrics.ResultFailed,
	} {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()
			sm.Record(r, 100)
		}(r)
	}
	wg.Wait()

	s := sm.Snapshot()
	if s.Total != 6 || s.Fetched != 3 || s.Cached != 2 || s.Failed != 1 {
		t.Errorf("Snapshot = %+v, want total=6 fetched=3 cached=2 failed=1", s)
	}
	if s.BytesTotal != 300 {
		t.Errorf("BytesTotal = %d, want 300 (only fetched tiles count)", s.BytesTotal)
	}

	fetchedAfter := testutil.ToFloat64(metrics.TileResults.WithLabelValues(metrics.ResultFetched))
	if fetchedAfter-fetchedBefore != 3 {
		t.Errorf("fetched counter advanced by %v, want 3", fetchedAfter-fetchedBefore)
	}
}

func TestProgressBarAdvances(t *testing.T) {
	var buf bytes.Buffer
	sm := NewStatsMonitor(logger.NewNop())
	sm.InitStats(2)
	sm.AttachProgressBar(&buf)

	sm.Record(metrics.ResultCached, 0)
	sm.Record(metrics.ResultFetched, 10)
	sm.Finish()

	if buf.Len() == 0 {
		t.Error("progress bar wrote nothing")
	}
}

func TestWorkerGauge(t *testing.T) {
	sm := NewStatsMonitor(logger.NewNop())
	sm.InitStats(1)
	sm.WorkerStarted()
	sm.WorkerStarted()
	sm.WorkerDone()
	if got := sm.Snapshot().ActiveWorkers; got != 1 {
		t.Errorf("ActiveWorkers = %d, want 1", got)
	}
}

func TestPrintFinalStatsEmptyRun(t *testing.T) {
	sm := NewStatsMonitor(logger.NewNop())
	sm.InitStats(0)
	sm.PrintFinalStats()
}

func TestPercentString(t *testing.T) {
	if got := percentString(66.666); got != "66.7%" {
		t.Errorf("percentString = %q, want 66.7%%", got)
	}
}
