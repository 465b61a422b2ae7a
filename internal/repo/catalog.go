package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-caja/internal/catalog"
)

// CatalogRepo reads items and providers.
type CatalogRepo struct {
	DB DBTX
}

// GetItem implements catalog.Catalog.
func (r CatalogRepo) GetItem(ctx context.Context, ident string) (catalog.Item, error) {
	var (
		it       catalog.Item
		minor    int64
		scale    int16
		provider *string
	)
	err := r.DB.QueryRow(ctx, `SELECT ident, name, unit_price_minor, price_scale, provider_ident FROM items WHERE ident = $1`, ident).
		Scan(&it.Ident, &it.Name, &minor, &scale, &provider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Item{}, fmt.Errorf("%w: %s", catalog.ErrItemNotFound, ident)
		}
		return catalog.Item{}, fmt.Errorf("repo: get item: %w", err)
	}
	it.UnitPrice = toMoney(minor, scale)
	if provider != nil {
		it.ProviderIdent = *provider
	}
	return it, nil
}

// GetProvider implements catalog.Catalog.
func (r CatalogRepo) GetProvider(ctx context.Context, ident string) (catalog.Provider, error) {
	var p catalog.Provider
	err := r.DB.QueryRow(ctx, `SELECT ident, name FROM providers WHERE ident = $1`, ident).Scan(&p.Ident, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Provider{}, fmt.Errorf("%w: %s", catalog.ErrProviderNotFound, ident)
		}
		return catalog.Provider{}, fmt.Errorf("repo: get provider: %w", err)
	}
	return p, nil
}
