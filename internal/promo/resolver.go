package promo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Target identifies what a promotion lookup is for.
type Target struct {
	Kind  TargetKind
	Ident string
}

// Filter narrows the promotions returned by a Store. Stores filter by target only;
// date and enabled checks belong to the Resolver.
type Filter struct {
	Target TargetKind
	Ident  string
}

// Store lists stored promotions.
type Store interface {
	ListPromotions(ctx context.Context, f Filter) ([]Promotion, error)
}

// Resolver determines the promotions eligible for a target at a point in time.
type Resolver struct {
	Store  Store
	Logger zerolog.Logger
}

// ResolveActive returns every enabled promotion of the target whose window
// contains at, ordered by magnitude (highest first) then by id (lowest first).
func (r Resolver) ResolveActive(ctx context.Context, target Target, at time.Time) ([]Promotion, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("promo: store not configured")
	}
	if target.Ident == "" {
		return nil, nil
	}
	rows, err := r.Store.ListPromotions(ctx, Filter{Target: target.Kind, Ident: target.Ident})
	if err != nil {
		return nil, fmt.Errorf("promo: list promotions: %w", err)
	}
	active := make([]Promotion, 0, len(rows))
	for _, p := range rows {
		if p.Target != target.Kind || p.TargetIdent != target.Ident {
			continue
		}
		if err := p.Validate(); err != nil {
			r.Logger.Warn().Err(err).Int64("promotion_id", p.ID).Msg("skipping invalid promotion")
			continue
		}
		if !p.ActiveOn(at) {
			continue
		}
		active = append(active, p)
	}
	Rank(active)
	return active, nil
}

// Rank orders promotions by magnitude descending, then id ascending.
func Rank(ps []Promotion) {
	sort.SliceStable(ps, func(i, j int) bool {
		if c := ps[i].Magnitude().Cmp(ps[j].Magnitude()); c != 0 {
			return c > 0
		}
		return ps[i].ID < ps[j].ID
	})
}

// Memory is an in-process Store.
type Memory []Promotion

// ListPromotions implements Store.
func (m Memory) ListPromotions(_ context.Context, f Filter) ([]Promotion, error) {
	out := make([]Promotion, 0)
	for _, p := range m {
		if p.Target == f.Target && p.TargetIdent == f.Ident {
			out = append(out, p)
		}
	}
	return out, nil
}
