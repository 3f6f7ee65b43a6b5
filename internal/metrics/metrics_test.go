package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTierMisses(t *testing.T) {
	before := testutil.ToFloat64(TierMisses.WithLabelValues("MRI"))
	RecordTierMisses([]string{"MRI", "MRI"})
	if got := testutil.ToFloat64(TierMisses.WithLabelValues("MRI")); got != before+2 {
		t.Fatalf("expected %v, got %v", before+2, got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveRequest(http.MethodGet, "/api/prices/", http.StatusOK, 10*time.Millisecond)
	RecordUnpriced([]string{"Audiometry"})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`campcost_http_request_duration_seconds_count{method="GET",route="/api/prices/",status="200"}`,
		`campcost_unpriced_services_total{service="Audiometry"}`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
