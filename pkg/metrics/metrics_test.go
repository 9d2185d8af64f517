package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCrawlMetrics(reg)

	m.ObserveWarning("relationships", "info")
	m.ObserveWarning("relationships", "info")
	m.ObserveWarning("statistics", "warning")
	m.AddGraphWrites("node", 3)
	m.AddGraphWrites("edge", 0)
	m.ObserveCrawl("relational-sql", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.warnings.WithLabelValues("relationships", "info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings.WithLabelValues("statistics", "warning")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.graphWrites.WithLabelValues("node")))

	count, err := testutil.GatherAndCount(reg, "metagraph_crawl_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCrawlMetrics_NilIsNoop(t *testing.T) {
	var m *CrawlMetrics
	assert.NotPanics(t, func() {
		m.ObserveWarning("schema", "error")
		m.ObserveCrawl("document", time.Second)
		m.AddGraphWrites("node", 1)
	})
}

func TestPush(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	NewCrawlMetrics(reg).ObserveWarning("schema", "error")

	require.NoError(t, Push(context.Background(), srv.URL, "metagraph_crawl", reg))
	assert.Equal(t, "/metrics/job/metagraph_crawl", gotPath)
}

func TestPush_RetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	NewCrawlMetrics(reg).ObserveWarning("schema", "error")

	require.NoError(t, Push(context.Background(), srv.URL, "metagraph_crawl", reg))
	assert.Equal(t, int32(2), calls.Load())
}
