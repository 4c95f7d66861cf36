package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run metrics. They live on a private registry rather
// than the default one so a CLI run (or a test) only sees its own series.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestsTotal counts NCBI HTTP attempts by endpoint and status code.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes NCBI HTTP attempt latency by endpoint.
	RequestDuration *prometheus.HistogramVec

	// SearchesTotal counts searches by outcome (ok, error).
	SearchesTotal *prometheus.CounterVec

	// IDsFound observes how many identifiers a search returned.
	IDsFound prometheus.Histogram

	// ArticlesFetched counts detail fetches that produced an article.
	ArticlesFetched prometheus.Counter

	// ArticlesSkipped counts detail fetches that failed and were skipped.
	ArticlesSkipped prometheus.Counter

	// ArticlesQualifying counts articles with at least one industry author.
	ArticlesQualifying prometheus.Counter

	// CacheLookups counts article cache lookups by result (hit, miss).
	CacheLookups *prometheus.CounterVec

	// RunDuration observes the end-to-end pipeline duration.
	RunDuration prometheus.Histogram
}

// NewMetrics creates the metrics on a fresh registry. The namespace is used
// as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ncbi_requests_total",
			Help:      "NCBI E-utilities HTTP attempts by endpoint and status code",
		}, []string{"endpoint", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ncbi_request_duration_seconds",
			Help:      "NCBI E-utilities HTTP attempt latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"endpoint"}),

		SearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "PubMed searches by outcome",
		}, []string{"outcome"}),
		IDsFound: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_ids_found",
			Help:      "Number of PMIDs returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500, 1000},
		}),

		ArticlesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Articles whose details were retrieved",
		}),
		ArticlesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_skipped_total",
			Help:      "Articles skipped because their details could not be retrieved",
		}),
		ArticlesQualifying: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_qualifying_total",
			Help:      "Articles with at least one non-academic author",
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Article cache lookups by result",
		}, []string{"result"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of a search-and-report run",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
}

// ObserveRequest records one NCBI HTTP attempt. Its signature matches
// ncbi.RequestObserver. A zero status means no response was received.
func (m *Metrics) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(endpoint, code).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordSearch records a completed search and the number of IDs it returned.
func (m *Metrics) RecordSearch(ids int) {
	m.SearchesTotal.WithLabelValues("ok").Inc()
	m.IDsFound.Observe(float64(ids))
}

// RecordSearchFailed records a search that returned an error.
func (m *Metrics) RecordSearchFailed() {
	m.SearchesTotal.WithLabelValues("error").Inc()
}

// RecordArticleFetched records a retrieved article and whether it qualified.
func (m *Metrics) RecordArticleFetched(qualifying bool) {
	m.ArticlesFetched.Inc()
	if qualifying {
		m.ArticlesQualifying.Inc()
	}
}

// RecordArticleSkipped records a failed detail fetch.
func (m *Metrics) RecordArticleSkipped() {
	m.ArticlesSkipped.Inc()
}

// RecordCacheLookup records an article cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordRun records the duration of a whole run.
func (m *Metrics) RecordRun(elapsed time.Duration) {
	m.RunDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes every metric in the Prometheus text format to path,
// atomically, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
