package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetnorm_ingest_runs_total",
		Help: "Total load runs",
	})
	IngestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetnorm_ingest_errors_total",
		Help: "Total load runs that ended in error",
	})
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tweetnorm_ingest_duration_seconds",
		Help:    "Load run duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
	Records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetnorm_records_total",
		Help: "Archive records by outcome (read, committed, skipped, rejected)",
	}, []string{"outcome"})
	Rows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetnorm_rows_total",
		Help: "Candidate rows by table and outcome",
	}, []string{"kind", "outcome"})
	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tweetnorm_batch_duration_seconds",
		Help:    "Batch transaction duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	BatchIsolations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetnorm_batch_isolations_total",
		Help: "Batches retried one record at a time after a failure",
	})
	StoreRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetnorm_store_retries_total",
		Help: "Storage retry attempts after connection failures",
	}, []string{"op"})
	MergeConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetnorm_merge_conflicts_total",
		Help: "Fields observed with a value different from the stored one",
	}, []string{"kind", "stable"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetnorm_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"cmd"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetnorm_command_errors_total",
		Help: "CLI command failures",
	}, []string{"cmd"})
)

func init() {
	prometheus.MustRegister(IngestRuns, IngestErrors, IngestDuration, Records, Rows,
		BatchDuration, BatchIsolations, StoreRetries, MergeConflicts, CommandRuns, CommandErrors)
}

// StartServer serves /metrics and /health on addr (e.g. ":9090"), falling
// back to METRICS_ADDR. It returns nil when no address is configured.
func StartServer(addr string) *http.Server {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// ObserveIngestDuration records a run duration
func ObserveIngestDuration(start time.Time) {
	IngestDuration.Observe(time.Since(start).Seconds())
}

// ObserveBatchDuration records a batch transaction duration.
func ObserveBatchDuration(start time.Time) {
	BatchDuration.Observe(time.Since(start).Seconds())
}

func AddRecords(outcome string, n int) { Records.WithLabelValues(outcome).Add(float64(n)) }

func AddRows(kind, outcome string, n int) {
	if n > 0 {
		Rows.WithLabelValues(kind, outcome).Add(float64(n))
	}
}

// IncStoreRetry increments the retry counter for a storage operation.
func IncStoreRetry(op string) { StoreRetries.WithLabelValues(op).Inc() }

func IncMergeConflict(kind string, stable bool) {
	s := "false"
	if stable {
		s = "true"
	}
	MergeConflicts.WithLabelValues(kind, s).Inc()
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
