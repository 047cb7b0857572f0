package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/noah-isme/kasir-api/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("kasir", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/total", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/quotes/total"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/quotes/total", "200"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}

	samples := testutil.CollectAndCount(metrics.ReqDur)
	if samples == 0 {
		t.Fatalf("expected histogram sample")
	}
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("kasir", registry)
	// A second call must be a no-op rather than a duplicate registration panic.
	obs.MustRegisterDomainMetrics("kasir", registry)

	obs.QuoteTotal.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(obs.QuoteTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected quote counter 1, got %v", got)
	}
}

func TestRoutePatternContext(t *testing.T) {
	ctx := obs.WithRoutePattern(nil, "/api/v1/quotes/total")
	if got := obs.RoutePatternFromContext(ctx); got != "/api/v1/quotes/total" {
		t.Fatalf("unexpected route pattern %q", got)
	}
	if got := obs.RoutePatternFromContext(nil); got != "" {
		t.Fatalf("expected empty pattern, got %q", got)
	}
}
