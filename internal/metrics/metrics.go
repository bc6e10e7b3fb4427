package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftnet_pages_fetched_total",
		Help: "Total timeline pages fetched",
	})
	FetchRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftnet_fetch_runs_total",
		Help: "Total full fetch runs",
	})
	FetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftnet_fetch_errors_total",
		Help: "Total fetch run errors",
	})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driftnet_fetch_duration_seconds",
		Help:    "Full fetch run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftnet_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	RateLimitHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftnet_rate_limit_hits_total",
		Help: "Total 429 responses observed",
	})
	BackfillBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftnet_backfill_batches_total",
		Help: "Total backfill batches dispatched",
	})
	BackfillUnresolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftnet_backfill_unresolved_total",
		Help: "Referenced tweet ids that stayed unresolved after backfill",
	})
	DedupDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftnet_dedup_decisions_total",
		Help: "Deduplication decisions by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		PagesFetched, FetchRuns, FetchErrors, FetchDuration,
		APIRetries, RateLimitHits, BackfillBatches, BackfillUnresolved,
		DedupDecisions,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// Empty addr falls back to METRICS_ADDR; still empty disables it.
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveFetchDuration records a full run duration.
func ObserveFetchDuration(start time.Time) {
	FetchDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncDecision increments the dedup decision counter for an outcome.
func IncDecision(outcome string) { DedupDecisions.WithLabelValues(outcome).Inc() }
