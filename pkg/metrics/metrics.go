// Package metrics exposes crawl and graph-write counters. A CLI run is
// short-lived, so the registry is pushed to a Pushgateway rather than scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

const namespace = "metagraph"

// CrawlMetrics groups the collectors recorded during a crawl.
// A nil *CrawlMetrics is valid and records nothing.
type CrawlMetrics struct {
	warnings    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	graphWrites *prometheus.CounterVec
}

// NewCrawlMetrics creates the collectors and registers them on reg.
func NewCrawlMetrics(reg prometheus.Registerer) *CrawlMetrics {
	factory := promauto.With(reg)
	return &CrawlMetrics{
		// Labels: feature (schema, statistics, ...), level (info, warning, error)
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "warnings_total",
			Help:      "Crawl warnings emitted, by feature and level",
		}, []string{"feature", "level"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "duration_seconds",
			Help:      "Wall time of one source crawl",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),

		// Labels: type (node, edge, provenance)
		graphWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "writes_total",
			Help:      "Rows upserted into the graph store",
		}, []string{"type"}),
	}
}

func (m *CrawlMetrics) ObserveWarning(feature, level string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(feature, level).Inc()
}

func (m *CrawlMetrics) ObserveCrawl(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *CrawlMetrics) AddGraphWrites(rowType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.graphWrites.WithLabelValues(rowType).Add(float64(n))
}

// Push sends everything in g to the Pushgateway at url under job.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	pusher := push.New(url, job).Gatherer(g)
	err := retry.Do(ctx, nil, func() error {
		return pusher.PushContext(ctx)
	})
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
