package geophoto

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueDepthMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geophoto",
		Name:      "queue_depth",
		Help:      "Number of jobs currently waiting in the download queue.",
	})
	requestsPerSecondMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geophoto",
		Name:      "requests_per_second",
		Help:      "Upstream search requests issued per second, averaged since the last report.",
	})
	jobsPerSecondMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geophoto",
		Name:      "jobs_per_second",
		Help:      "Queue jobs completed per second, averaged since the last report.",
	})
	photosPerSecondMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geophoto",
		Name:      "photos_per_second",
		Help:      "Photo records persisted per second, averaged since the last report.",
	})
)

func init() {
	for _, m := range []prometheus.Collector{
		queueDepthMetric, requestsPerSecondMetric, jobsPerSecondMetric, photosPerSecondMetric,
	} {
		if err := prometheus.Register(m); err != nil {
			fmt.Println("geophoto: error registering metric", err)
		}
	}
}

// Stats accumulates the downloader's running counters between reports.
// The counters are updated and reset with atomic operations; since is a
// plain field reset by Report (spec.md §4.2, "emits stats every ~60s").
type Stats struct {
	requests uint64
	photos   uint64
	jobs     uint64
	since    time.Time
}

// NewStats starts a fresh stats window.
func NewStats() *Stats {
	return &Stats{since: time.Now()}
}

func (s *Stats) AddRequest()       { atomic.AddUint64(&s.requests, 1) }
func (s *Stats) AddPhotos(n int)   { atomic.AddUint64(&s.photos, uint64(n)) }
func (s *Stats) AddJob()           { atomic.AddUint64(&s.jobs, 1) }

// Report prints a human-readable stats line and updates the Prometheus
// gauges, then resets the window. humanize.Comma formats the raw
// counts the same way the teacher's bulk-load summaries do.
func (s *Stats) Report(logger *log.Logger, queueDepth int) {
	elapsed := time.Since(s.since).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	requests := atomic.SwapUint64(&s.requests, 0)
	photos := atomic.SwapUint64(&s.photos, 0)
	jobs := atomic.SwapUint64(&s.jobs, 0)
	s.since = time.Now()

	rps := float64(requests) / elapsed
	jps := float64(jobs) / elapsed
	pps := float64(photos) / elapsed

	logger.Printf(
		"queue=%s requests=%s/s jobs=%s/s photos=%s/s",
		humanize.Comma(int64(queueDepth)),
		humanize.Commaf(rps),
		humanize.Commaf(jps),
		humanize.Commaf(pps),
	)

	queueDepthMetric.Set(float64(queueDepth))
	requestsPerSecondMetric.Set(rps)
	jobsPerSecondMetric.Set(jps)
	photosPerSecondMetric.Set(pps)
}
