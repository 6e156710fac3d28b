package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExposure(t *testing.T) {
	IngestRuns.Inc()
	IngestErrors.Inc()
	IncStoreRetry("write_batch")
	AddRecords("read", 2)
	AddRows("users", "inserted", 3)
	IncMergeConflict("users", true)
	IncCommandRun("load")
	IncCommandError("load")
	BatchIsolations.Inc()
	ObserveIngestDuration(time.Now().Add(-1500 * time.Millisecond))
	ObserveBatchDuration(time.Now().Add(-20 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"tweetnorm_ingest_runs_total",
		"tweetnorm_ingest_errors_total",
		"tweetnorm_ingest_duration_seconds",
		"tweetnorm_store_retries_total",
		"tweetnorm_records_total",
		"tweetnorm_rows_total",
		"tweetnorm_merge_conflicts_total",
		"tweetnorm_batch_duration_seconds",
		"tweetnorm_batch_isolations_total",
		"tweetnorm_command_runs_total",
		"tweetnorm_command_errors_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}

func TestAddRowsSkipsZero(t *testing.T) {
	before := testutil.ToFloat64(Rows.WithLabelValues("tweet_media", "rejected"))
	AddRows("tweet_media", "rejected", 0)
	AddRows("tweet_media", "rejected", 2)
	if got := testutil.ToFloat64(Rows.WithLabelValues("tweet_media", "rejected")); got != before+2 {
		t.Fatalf("got %v want %v", got, before+2)
	}
}
