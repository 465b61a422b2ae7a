package obs_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("caja", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}

	samples := testutil.CollectAndCount(metrics.ReqDur)
	if samples == 0 {
		t.Fatalf("expected histogram sample")
	}

	if metrics.InFlight != nil {
		if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
			t.Fatalf("expected no in-flight requests, got %v", val)
		}
	}
}

func TestRequestLoggerIncludesTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := common.WithTerminalID(req.Context(), "T3")
			next.ServeHTTP(w, req.WithContext(common.WithUserID(ctx, "ana")))
		})
	})
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Use(obs.TracingMiddleware)
	r.Get("/api/v1/caja/sessions/{id}/balance", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/caja/sessions/abc/balance", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	out := buf.String()
	require.Contains(t, out, `"terminal_id":"T3"`)
	require.Contains(t, out, `"cashier_id":"ana"`)
	require.Contains(t, out, `"route":"/api/v1/caja/sessions/{id}/balance"`)
	require.Contains(t, out, `"status":200`)
}

func TestRequestLoggerSeesIdentityFromInnerHandler(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(obs.RequestInfoMiddleware)
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				obs.AnnotateIdentity(req.Context(), "T7", "luis")
				next.ServeHTTP(w, req.WithContext(common.WithTerminalID(req.Context(), "T7")))
			})
		})
		r.Post("/api/v1/cashier/checkout", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cashier/checkout", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	out := buf.String()
	require.Contains(t, out, `"terminal_id":"T7"`)
	require.Contains(t, out, `"cashier_id":"luis"`)
	require.Contains(t, out, `"route":"/api/v1/cashier/checkout"`)
}

func TestRequestInfoIsNilSafe(t *testing.T) {
	var info *obs.RequestInfo
	info.SetRoute("/x")
	require.Empty(t, info.Route())
	terminal, cashier := info.Identity()
	require.Empty(t, terminal)
	require.Empty(t, cashier)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	obs.AnnotateIdentity(req.Context(), "T1", "ana")
	require.Nil(t, obs.RequestInfoFrom(req.Context()))
}
