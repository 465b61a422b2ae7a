package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-caja/internal/app"
	"github.com/noah-isme/backend-caja/internal/auth"
	"github.com/noah-isme/backend-caja/internal/catalog"
	"github.com/noah-isme/backend-caja/internal/config"
	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/promo"
	"github.com/noah-isme/backend-caja/internal/ratelimit"
)

type receiptBook struct {
	mu        sync.Mutex
	receipts  []payment.Receipt
	movements []ledger.Movement
}

func (b *receiptBook) AppendMovement(_ context.Context, m ledger.Movement, r *payment.Receipt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.movements = append(b.movements, m)
	if r != nil {
		b.receipts = append(b.receipts, *r)
	}
	return nil
}

func (b *receiptBook) SaveReceipt(_ context.Context, r payment.Receipt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts = append(b.receipts, r)
	return nil
}

func (b *receiptBook) ListReceipts(_ context.Context, from, to time.Time) ([]payment.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []payment.Receipt
	for _, r := range b.receipts {
		if !r.IssuedAt.Before(from) && !r.IssuedAt.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *receiptBook) ListMovements(_ context.Context, from, to time.Time, kind ledger.Kind) ([]ledger.Movement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ledger.Movement
	for _, mv := range b.movements {
		if mv.Kind == kind && !mv.At.Before(from) && !mv.At.After(to) {
			out = append(out, mv)
		}
	}
	return out, nil
}

type harness struct {
	app    *app.App
	server http.Handler
	book   *receiptBook
	events *events.MemoryStore
	token  string
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "test",
		JWTSecret:          "test-secret",
		AuthIssuer:         "caja",
		AuthAudience:       "caja-terminals",
		AuthTokenTTL:       time.Hour,
		AuthClockSkew:      time.Second,
		CurrencyScale:      2,
		Location:           time.UTC,
		CatalogCacheTTL:    time.Minute,
		ReportCacheTTL:     time.Minute,
		IdempotencyTTL:     time.Hour,
		DrawerLockTTL:      time.Second,
		LockRetryBackoff:   5 * time.Millisecond,
		CheckoutRateLimit:  100,
		CheckoutRateWindow: time.Minute,
		QueueName:          "events",
	}
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	book := &receiptBook{}
	store := &events.MemoryStore{}
	ports := app.Ports{
		Catalog: catalog.Memory{
			Items: map[string]catalog.Item{
				"A": {Ident: "A", Name: "Cafe", UnitPrice: money.FromMinorUnits(1500, 2), ProviderIdent: "P1"},
			},
			Providers: map[string]catalog.Provider{"P1": {Ident: "P1", Name: "Tostador"}},
		},
		Promotions: promo.Memory{},
		Journal:    book,
		Receipts:   book,
		Sales:      book,
		Events:     store,
	}
	a, err := app.New(app.Options{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Redis:    client,
		Limiter:  ratelimit.StoreLimiter{Store: memory.NewStore()},
		Registry: prometheus.NewRegistry(),
		Now:      func() time.Time { return now },
	}, ports)
	require.NoError(t, err)

	token, _, err := a.Tokens.Sign(auth.Identity{Terminal: "T1", Cashier: "ana"})
	require.NoError(t, err)
	return &harness{app: a, server: a.Router(), book: book, events: store, token: token}
}

func (h *harness) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+h.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func amountOf(t *testing.T, v any) float64 {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "money value %v", v)
	return m["amount"].(float64)
}

func TestRegisterDayEndToEnd(t *testing.T) {
	h := newHarness(t, testConfig())

	rec, _ := h.do(t, http.MethodPost, "/api/v1/caja/open", `{"opening":{"amount":10000,"scale":2}}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, 1, h.app.Drawers.OpenCount())

	rec, body := h.do(t, http.MethodPost, "/api/v1/cashier/quote", `{"lines":[{"item":"A","qty":2}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, float64(3000), amountOf(t, body["data"].(map[string]any)["grand_total"]))

	checkout := `{"lines":[{"item":"A","qty":2}],"payment":{"method":"cash","tendered":{"amount":5000,"scale":2}}}`
	idem := map[string]string{"Idempotency-Key": "sale-1"}
	rec, body = h.do(t, http.MethodPost, "/api/v1/cashier/checkout", checkout, idem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := body["data"].(map[string]any)["receipt"].(map[string]any)
	require.Equal(t, float64(2000), amountOf(t, receipt["change"]))

	rec, replayed := h.do(t, http.MethodPost, "/api/v1/cashier/checkout", checkout, idem)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotent-Replay"))
	require.Equal(t, body, replayed)
	require.Len(t, h.book.receipts, 1)

	rec, body = h.do(t, http.MethodGet, "/api/v1/caja/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := body["data"].(map[string]any)
	require.Equal(t, true, status["open"])
	require.Equal(t, float64(13000), amountOf(t, status["balance"]))

	rec, body = h.do(t, http.MethodPost, "/api/v1/caja/expenses", `{"amount":{"amount":500,"scale":2},"concept":"hielo"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body = h.do(t, http.MethodPost, "/api/v1/caja/close", `{"declared":{"amount":12500,"scale":2}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closing := body["data"].(map[string]any)
	require.Equal(t, float64(12500), amountOf(t, closing["expected"]))
	require.Nil(t, closing["discrepancy"])
	require.Equal(t, 0, h.app.Drawers.OpenCount())

	rec, body = h.do(t, http.MethodGet, "/api/v1/reports/caja?from_date=2024-05-20&to_date=2024-05-20", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	totals := body["data"].(map[string]any)["totals"].(map[string]any)
	require.Equal(t, float64(1), totals["count"])
	require.Equal(t, float64(3000), amountOf(t, totals["total"]))
	require.Equal(t, float64(1), totals["expense_count"])
	require.Equal(t, float64(-500), amountOf(t, totals["expenses"]))

	require.Contains(t, h.events.Topics(), events.TopicSaleCompleted)
	require.Contains(t, h.events.Topics(), events.TopicDrawerClosed)
}

func TestCheckoutWithoutDrawerKeepsReceipt(t *testing.T) {
	h := newHarness(t, testConfig())

	rec, body := h.do(t, http.MethodPost, "/api/v1/cashier/checkout", `{"lines":[{"item":"A","qty":1}],"payment":{"method":"debit"}}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Nil(t, body["data"].(map[string]any)["session_id"])
	require.Len(t, h.book.receipts, 1)
	require.Empty(t, h.book.movements)
}

func TestRoutesRequireTerminalToken(t *testing.T) {
	h := newHarness(t, testConfig())
	h.token = "garbage"

	rec, _ := h.do(t, http.MethodGet, "/api/v1/caja/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutRateLimit = 1
	h := newHarness(t, cfg)
	body := `{"lines":[{"item":"A","qty":1}],"payment":{"method":"debit"}}`

	rec, _ := h.do(t, http.MethodPost, "/api/v1/cashier/checkout", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = h.do(t, http.MethodPost, "/api/v1/cashier/checkout", body, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCatalogLookupThroughRouter(t *testing.T) {
	h := newHarness(t, testConfig())

	rec, body := h.do(t, http.MethodGet, "/api/v1/catalog/items/A", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Cafe", body["data"].(map[string]any)["name"])

	rec, _ = h.do(t, http.MethodGet, "/api/v1/catalog/items/ZZ", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
