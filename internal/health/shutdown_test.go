package health_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/health"
)

func TestReadyDrainsWithOpenDrawers(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	open := 2
	handler := health.Handler{Checker: stubChecker{}, OpenDrawers: func() int { return open }}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)

	rr := httptest.NewRecorder()
	handler.Ready(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"db":"ok","redis":"ok","open_drawers":2}`, rr.Body.String())

	health.SetReady(false)
	rr = httptest.NewRecorder()
	handler.Ready(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"shutting_down"}`, rr.Body.String())

	// liveness is unaffected so the process is not killed while drawers drain
	rr = httptest.NewRecorder()
	handler.Live(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
