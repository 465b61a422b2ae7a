package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-caja/internal/promo"
)

// PromotionRepo lists stored promotions. Rows are returned as stored; the
// resolver drops the ones that fail validation.
type PromotionRepo struct {
	DB DBTX
}

// ListPromotions implements promo.Store.
func (r PromotionRepo) ListPromotions(ctx context.Context, f promo.Filter) ([]promo.Promotion, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, target, target_ident, kind, percent::text, minimum_qty, free_qty, starts, ends, enabled
		FROM promotions
		WHERE target = $1 AND target_ident = $2
		ORDER BY id`, string(f.Target), f.Ident)
	if err != nil {
		return nil, fmt.Errorf("repo: list promotions: %w", err)
	}
	defer rows.Close()

	var out []promo.Promotion
	for rows.Next() {
		var (
			p            promo.Promotion
			target, kind string
			percent      string
			minQty, free int32
			starts, ends time.Time
		)
		if err := rows.Scan(&p.ID, &target, &p.TargetIdent, &kind, &percent, &minQty, &free, &starts, &ends, &p.Enabled); err != nil {
			return nil, fmt.Errorf("repo: scan promotion: %w", err)
		}
		pct, err := decimal.NewFromString(percent)
		if err != nil {
			return nil, fmt.Errorf("repo: promotion %d percent: %w", p.ID, err)
		}
		p.Target = promo.TargetKind(target)
		p.Kind = promo.Kind(kind)
		p.Percent = pct
		p.Bundle = promo.Bundle{MinimumQty: int(minQty), FreeQty: int(free)}
		p.Starts = dateOnly(starts)
		p.Ends = dateOnly(ends)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list promotions: %w", err)
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
