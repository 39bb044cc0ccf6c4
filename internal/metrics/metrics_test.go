package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLedgerOperation(t *testing.T) {
	before := testutil.ToFloat64(ledgerOps.WithLabelValues("deposit", "error"))
	RecordLedgerOperation("deposit", errors.New("rejected"))
	after := testutil.ToFloat64(ledgerOps.WithLabelValues("deposit", "error"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHTTPRequest("get", "/health", http.StatusOK, 2*time.Millisecond)
	RecordDraw("pending")
	SetContestTotals(42, 3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"saferwinning_http_requests_total",
		"saferwinning_contest_draws_total",
		"saferwinning_contest_total_entries 42",
		"saferwinning_contest_participants 3",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
