package catalog

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/money"
)

var (
	// ErrItemNotFound is returned when no catalog item carries the requested ident.
	ErrItemNotFound = fmt.Errorf("catalog item %w", common.ErrNotFound)
	// ErrProviderNotFound is returned when no provider carries the requested ident.
	ErrProviderNotFound = fmt.Errorf("provider %w", common.ErrNotFound)
)

// Item is a sellable catalog entry. ProviderIdent is a weak reference.
type Item struct {
	Ident         string      `json:"ident"`
	Name          string      `json:"name"`
	UnitPrice     money.Money `json:"unit_price"`
	ProviderIdent string      `json:"provider_ident,omitempty"`
}

// Provider supplies catalog items and may fund promotions.
type Provider struct {
	Ident string `json:"ident"`
	Name  string `json:"name"`
}

// Catalog is the read-only lookup port consumed by pricing.
type Catalog interface {
	GetItem(ctx context.Context, ident string) (Item, error)
	GetProvider(ctx context.Context, ident string) (Provider, error)
}

// Memory is a fixed in-process catalog, used by tests and local tooling.
type Memory struct {
	Items     map[string]Item
	Providers map[string]Provider
}

// GetItem implements Catalog.
func (m Memory) GetItem(_ context.Context, ident string) (Item, error) {
	it, ok := m.Items[ident]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, ident)
	}
	return it, nil
}

// GetProvider implements Catalog.
func (m Memory) GetProvider(_ context.Context, ident string) (Provider, error) {
	p, ok := m.Providers[ident]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, ident)
	}
	return p, nil
}
