package drawer_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/drawer"
)

func drawerRouter(h *drawer.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if t := req.Header.Get("X-Test-Terminal"); t != "" {
				req = req.WithContext(common.WithTerminalID(req.Context(), t))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/v1/caja/status", h.Status)
	r.Post("/api/v1/caja/open", h.Open)
	r.Post("/api/v1/caja/close", h.Close)
	r.Post("/api/v1/caja/expenses", h.Expense)
	r.Get("/api/v1/caja/sessions/{id}/balance", h.Balance)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Test-Terminal", "T1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestDrawerHandlersFlow(t *testing.T) {
	h := drawerRouter(&drawer.Handler{Manager: newManager(newMemoryStore(), nil), Validate: common.NewValidator()})

	rec, body := do(t, h, http.MethodGet, "/api/v1/caja/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["data"].(map[string]any)["open"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/caja/open", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/v1/caja/open", `{"opening":{"amount":50000,"scale":2}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionID := body["data"].(map[string]any)["id"].(string)

	rec, body = do(t, h, http.MethodPost, "/api/v1/caja/open", `{"opening":{"amount":1,"scale":2}}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "STATE", body["error"].(map[string]any)["code"])

	rec, body = do(t, h, http.MethodPost, "/api/v1/caja/expenses", `{"amount":{"amount":30000,"scale":2},"concept":"hielo"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	bal := body["data"].(map[string]any)["balance"].(map[string]any)
	require.EqualValues(t, 20000, bal["amount"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/caja/expenses", `{"amount":{"amount":-5,"scale":2},"concept":"x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/v1/caja/sessions/"+sessionID+"/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].(map[string]any)["movements"], 1)

	rec, body = do(t, h, http.MethodPost, "/api/v1/caja/close", `{"declared":{"amount":19000,"scale":2}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	disc := body["data"].(map[string]any)["discrepancy"].(map[string]any)
	require.Equal(t, "short", disc["direction"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/caja/close", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestDrawerHandlersRequireTerminal(t *testing.T) {
	h := drawerRouter(&drawer.Handler{Manager: newManager(newMemoryStore(), nil), Validate: common.NewValidator()})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/caja/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/caja/sessions/not-a-uuid/balance", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDrawerHandlersAcceptBusinessDate(t *testing.T) {
	now := time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC)
	h := drawerRouter(&drawer.Handler{
		Manager:  newManager(newMemoryStore(), nil),
		Validate: common.NewValidator(),
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})

	rec, _ := do(t, h, http.MethodPost, "/api/v1/caja/open", `{"opening":{"amount":100,"scale":2},"at":"02/03/2026"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body := do(t, h, http.MethodPost, "/api/v1/caja/open", `{"opening":{"amount":100,"scale":2},"at":"2026-03-02"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "2026-03-02T10:30:00Z", body["data"].(map[string]any)["opened_at"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/caja/close", `{"at":"2026-03-01"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/v1/caja/close", `{"at":"2026-03-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	session := body["data"].(map[string]any)["session"].(map[string]any)
	require.Equal(t, "2026-03-02T10:30:00Z", session["closed_at"])
}
