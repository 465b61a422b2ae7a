package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/cache"
	"github.com/noah-isme/backend-caja/internal/catalog"
	"github.com/noah-isme/backend-caja/internal/money"
)

type countingCatalog struct {
	catalog.Memory
	itemCalls int
}

func (c *countingCatalog) GetItem(ctx context.Context, ident string) (catalog.Item, error) {
	c.itemCalls++
	return c.Memory.GetItem(ctx, ident)
}

func newMemory() catalog.Memory {
	return catalog.Memory{
		Items: map[string]catalog.Item{
			"7501": {Ident: "7501", Name: "Cafe", UnitPrice: money.FromMinorUnits(4500, 2), ProviderIdent: "P1"},
		},
		Providers: map[string]catalog.Provider{
			"P1": {Ident: "P1", Name: "Tostadores"},
		},
	}
}

func TestItemHandler(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v1/catalog/items/{ident}", catalog.Handler{Catalog: newMemory()}.Item)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/items/7501", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Ident     string      `json:"ident"`
			UnitPrice money.Money `json:"unit_price"`
			Provider  *catalog.Provider
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "7501", body.Data.Ident)
	require.Equal(t, int64(4500), body.Data.UnitPrice.Minor())
	require.NotNil(t, body.Data.Provider)
	require.Equal(t, "Tostadores", body.Data.Provider.Name)

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/items/0000", nil))
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCachedCatalogReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingCatalog{Memory: newMemory()}
	cached := catalog.CachedCatalog{Next: inner, Cache: cache.New(client, time.Minute, "caja:catalog:")}
	ctx := context.Background()

	first, err := cached.GetItem(ctx, "7501")
	require.NoError(t, err)
	second, err := cached.GetItem(ctx, "7501")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.itemCalls)
	require.True(t, mr.Exists("caja:catalog:item:7501"))

	_, err = cached.GetItem(ctx, "nope")
	require.ErrorIs(t, err, catalog.ErrItemNotFound)
	require.False(t, mr.Exists("caja:catalog:item:nope"))
}
