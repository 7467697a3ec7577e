package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultFetched = "fetched"
	ResultCached  = "cached"
	ResultFailed  = "failed"
)

var (
	TilesPlanned = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "regiontiles",
		Subsystem: "plan",
		Name:      "tiles",
		Help:      "Tiles in the most recent plan, by set (fetch or skipped)",
	}, []string{"set"})

	HighestZoom = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regiontiles",
		Subsystem: "plan",
		Name:      "highest_zoom",
		Help:      "Highest zoom level admitted by the most recent plan, -1 when none",
	})

	TileResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regiontiles",
		Subsystem: "fetch",
		Name:      "tiles_total",
		Help:      "Tiles processed by the fetcher, by result",
	}, []string{"result"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "regiontiles",
		Subsystem: "fetch",
		Name:      "upstream_latency_seconds",
		Help:      "Latency of upstream tile requests in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "regiontiles",
		Subsystem: "fetch",
		Name:      "bytes_written_total",
		Help:      "Bytes of tile data written to the cache",
	})
)
