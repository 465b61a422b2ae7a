package catalog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-caja/internal/cache"
)

// CachedCatalog is a read-through cache in front of another Catalog.
// Lookup misses are never cached so newly created items become visible at once.
type CachedCatalog struct {
	Next   Catalog
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// GetItem implements Catalog.
func (c CachedCatalog) GetItem(ctx context.Context, ident string) (Item, error) {
	key := cache.KeyItem(ident)
	var it Item
	if hit, err := c.Cache.GetJSON(ctx, key, &it); err != nil {
		c.Logger.Warn().Err(err).Str("ident", ident).Msg("catalog cache read")
	} else if hit {
		return it, nil
	}
	it, err := c.Next.GetItem(ctx, ident)
	if err != nil {
		return Item{}, err
	}
	if err := c.Cache.SetJSON(ctx, key, it); err != nil {
		c.Logger.Warn().Err(err).Str("ident", ident).Msg("catalog cache write")
	}
	return it, nil
}

// GetProvider implements Catalog.
func (c CachedCatalog) GetProvider(ctx context.Context, ident string) (Provider, error) {
	key := cache.KeyProvider(ident)
	var p Provider
	if hit, err := c.Cache.GetJSON(ctx, key, &p); err != nil {
		c.Logger.Warn().Err(err).Str("ident", ident).Msg("catalog cache read")
	} else if hit {
		return p, nil
	}
	p, err := c.Next.GetProvider(ctx, ident)
	if err != nil {
		return Provider{}, err
	}
	if err := c.Cache.SetJSON(ctx, key, p); err != nil {
		c.Logger.Warn().Err(err).Str("ident", ident).Msg("catalog cache write")
	}
	return p, nil
}
