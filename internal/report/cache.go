package report

import (
	"context"

	"github.com/noah-isme/backend-caja/internal/cache"
)

const generationName = "report"

// Cache stores built reports keyed by range and a generation counter. Bumping
// the generation invalidates every cached range at once.
type Cache struct {
	Store *cache.JSON
}

// Get loads the cached report for the range.
func (c *Cache) Get(ctx context.Context, from, to string, dst *Report) (bool, error) {
	gen, err := c.Store.Generation(ctx, generationName)
	if err != nil {
		return false, err
	}
	return c.Store.GetJSON(ctx, cache.KeyReport(gen, from, to), dst)
}

// Set stores rep for the range at the current generation.
func (c *Cache) Set(ctx context.Context, from, to string, rep Report) error {
	gen, err := c.Store.Generation(ctx, generationName)
	if err != nil {
		return err
	}
	return c.Store.SetJSON(ctx, cache.KeyReport(gen, from, to), rep)
}

// Invalidate drops every cached report. The worker calls it when a sale completes.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.Store.Bump(ctx, generationName)
	return err
}
