package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-caja/internal/catalog"
	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/promo"
)

var (
	// ErrInvalidLine is returned for a basket line with a non-positive quantity or contradictory discounts.
	ErrInvalidLine = fmt.Errorf("%w: invalid basket line", common.ErrValidation)
	// ErrEmptyBasket is returned when the basket has no lines.
	ErrEmptyBasket = fmt.Errorf("%w: basket is empty", common.ErrValidation)
	// ErrInvalidDiscount is returned for a malformed general discount.
	ErrInvalidDiscount = fmt.Errorf("%w: invalid general discount", common.ErrValidation)
	// ErrInvalidAdjustment is returned for a malformed provider adjustment.
	ErrInvalidAdjustment = fmt.Errorf("%w: invalid provider adjustment", common.ErrValidation)
	// ErrAmountOutOfRange is returned when an order total does not fit in minor units.
	ErrAmountOutOfRange = fmt.Errorf("%w: order amount out of range", common.ErrValidation)
)

// MaxLineQty bounds the quantity of a single basket line.
const MaxLineQty = 1_000_000

var hundred = decimal.NewFromInt(100)

// PromotionResolver yields the active promotions for a target, best first.
type PromotionResolver interface {
	ResolveActive(ctx context.Context, target promo.Target, at time.Time) ([]promo.Promotion, error)
}

// Engine prices baskets. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	Catalog  catalog.Catalog
	Resolver PromotionResolver
	// Scale is used for zero amounts when a basket carries no priced lines.
	Scale uint8
	// Concurrency bounds parallel line lookups; zero means unbounded.
	Concurrency int
}

// Price computes the priced order for req.
func (e Engine) Price(ctx context.Context, req Request) (PricedOrder, error) {
	if e.Catalog == nil || e.Resolver == nil {
		return PricedOrder{}, fmt.Errorf("pricing: engine not configured")
	}
	ctx, span := otel.Tracer("caja/pricing").Start(ctx, "pricing.Price")
	defer span.End()
	span.SetAttributes(attribute.Int("basket.lines", len(req.Basket.Lines)))

	if err := req.validate(); err != nil {
		span.RecordError(err)
		return PricedOrder{}, err
	}

	lines := make([]PricedLine, len(req.Basket.Lines))
	g, gctx := errgroup.WithContext(ctx)
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	}
	for i, line := range req.Basket.Lines {
		g.Go(func() error {
			priced, err := e.priceLine(gctx, line, req.AsOf)
			if err != nil {
				return fmt.Errorf("line %d (%s): %w", i, line.ItemIdent, err)
			}
			lines[i] = priced
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return PricedOrder{}, err
	}
	for _, adj := range req.Adjustments {
		if adj.ProviderIdent == "" {
			continue
		}
		if _, err := e.Catalog.GetProvider(ctx, adj.ProviderIdent); err != nil {
			span.RecordError(err)
			return PricedOrder{}, fmt.Errorf("adjustment %s: %w", adj.ProviderIdent, err)
		}
	}

	order, err := e.total(lines, req)
	if err != nil {
		span.RecordError(err)
		return PricedOrder{}, err
	}
	span.SetAttributes(attribute.Int64("order.grand_total_minor", order.GrandTotal.Minor()))
	return order, nil
}

func (e Engine) priceLine(ctx context.Context, line Line, asOf time.Time) (PricedLine, error) {
	item, err := e.Catalog.GetItem(ctx, line.ItemIdent)
	if err != nil {
		return PricedLine{}, err
	}
	subtotal, err := item.UnitPrice.MulInt(int64(line.Qty))
	if err != nil {
		return PricedLine{}, fmt.Errorf("%w: %w", ErrInvalidLine, err)
	}
	out := PricedLine{
		ItemIdent:      item.Ident,
		Name:           item.Name,
		ProviderIdent:  item.ProviderIdent,
		UnitPrice:      item.UnitPrice,
		Qty:            line.Qty,
		Subtotal:       subtotal,
		Discount:       money.Zero(subtotal.Scale()),
		DiscountSource: SourceNone,
	}

	switch {
	case line.DiscountPercent != nil:
		pct := *line.DiscountPercent
		out.Discount = subtotal.PercentOf(pct)
		out.DiscountSource = SourceExplicitPercent
		out.DiscountPercent = &pct
	case line.DiscountAmount != nil:
		out.Discount = line.DiscountAmount.Min(subtotal)
		out.DiscountSource = SourceExplicitAmount
	default:
		winner, err := e.winningPromotion(ctx, item, asOf)
		if err != nil {
			return PricedLine{}, err
		}
		if winner != nil {
			if err := applyPromotion(&out, *winner); err != nil {
				return PricedLine{}, fmt.Errorf("%w: %w", ErrInvalidLine, err)
			}
		}
	}
	total, err := subtotal.Sub(out.Discount)
	if err != nil {
		return PricedLine{}, fmt.Errorf("%w: %w", ErrInvalidLine, err)
	}
	out.Total = total.Max0()
	return out, nil
}

// winningPromotion prefers item-level promotions over provider-level ones.
func (e Engine) winningPromotion(ctx context.Context, item catalog.Item, asOf time.Time) (*promo.Promotion, error) {
	byItem, err := e.Resolver.ResolveActive(ctx, promo.Target{Kind: promo.TargetItem, Ident: item.Ident}, asOf)
	if err != nil {
		return nil, err
	}
	if len(byItem) > 0 {
		return &byItem[0], nil
	}
	if item.ProviderIdent == "" {
		return nil, nil
	}
	byProvider, err := e.Resolver.ResolveActive(ctx, promo.Target{Kind: promo.TargetProvider, Ident: item.ProviderIdent}, asOf)
	if err != nil {
		return nil, err
	}
	if len(byProvider) > 0 {
		return &byProvider[0], nil
	}
	return nil, nil
}

func applyPromotion(line *PricedLine, p promo.Promotion) error {
	var discount money.Money
	switch p.Kind {
	case promo.KindPercent:
		discount = line.Subtotal.PercentOf(p.Percent)
		pct := p.Percent
		line.DiscountPercent = &pct
	case promo.KindBundle:
		if line.Qty < p.Bundle.MinimumQty {
			return nil
		}
		free, err := line.UnitPrice.MulInt(int64(p.Bundle.FreeQty))
		if err != nil {
			return err
		}
		line.FreeQty = p.Bundle.FreeQty
		discount = free
	}
	if !discount.IsPositive() {
		line.DiscountPercent = nil
		line.FreeQty = 0
		return nil
	}
	id := p.ID
	line.Discount = discount.Min(line.Subtotal)
	line.DiscountSource = SourcePromotion
	line.PromotionID = &id
	line.PromotionKind = p.Kind
	line.PromotionTarget = p.Target
	return nil
}

func (e Engine) total(lines []PricedLine, req Request) (PricedOrder, error) {
	zero := money.Zero(e.Scale)
	order := PricedOrder{
		AsOf:                   req.AsOf,
		Lines:                  lines,
		Subtotal:               zero,
		LineDiscounts:          zero,
		LineSum:                zero,
		GeneralPercentDiscount: zero,
		GeneralAmountDiscount:  zero,
		GeneralDiscount:        zero,
		Surcharges:             zero,
		NetTotalAdjustments:    zero,
	}
	var sum money.Accumulator
	for _, l := range lines {
		order.Subtotal = sum.Add(order.Subtotal, l.Subtotal)
		order.LineDiscounts = sum.Add(order.LineDiscounts, l.Discount)
		order.LineSum = sum.Add(order.LineSum, l.Total)
	}

	remaining := order.LineSum
	if g := req.General; g != nil {
		if g.Percent != nil {
			pct := *g.Percent
			order.GeneralPercent = &pct
			order.GeneralPercentDiscount = remaining.PercentOf(pct).Min(remaining)
			remaining = sum.Sub(remaining, order.GeneralPercentDiscount)
		}
		if g.Amount != nil {
			order.GeneralAmountDiscount = g.Amount.Min(remaining)
			remaining = sum.Sub(remaining, order.GeneralAmountDiscount)
		}
	}
	order.GeneralDiscount = sum.Add(order.GeneralPercentDiscount, order.GeneralAmountDiscount)

	if len(req.Adjustments) > 0 {
		order.Adjustments = append([]Adjustment(nil), req.Adjustments...)
	}
	for _, adj := range req.Adjustments {
		switch adj.Kind {
		case AdjustSurcharge:
			order.Surcharges = sum.Add(order.Surcharges, adj.Amount)
		case AdjustNetTotal:
			order.NetTotalAdjustments = sum.Add(order.NetTotalAdjustments, adj.Amount)
		}
	}
	order.GrandTotal = sum.Sub(sum.Add(remaining, order.Surcharges), order.NetTotalAdjustments).Max0()
	if err := sum.Err(); err != nil {
		return PricedOrder{}, fmt.Errorf("%w: %w", ErrAmountOutOfRange, err)
	}
	return order, nil
}

func (r Request) validate() error {
	if len(r.Basket.Lines) == 0 {
		return ErrEmptyBasket
	}
	for i, l := range r.Basket.Lines {
		if l.ItemIdent == "" {
			return fmt.Errorf("%w: line %d: item ident is required", ErrInvalidLine, i)
		}
		if l.Qty <= 0 || l.Qty > MaxLineQty {
			return fmt.Errorf("%w: line %d: quantity must be within [1, %d]", ErrInvalidLine, i, MaxLineQty)
		}
		if l.DiscountPercent != nil && l.DiscountAmount != nil {
			return fmt.Errorf("%w: line %d: discount percent and amount are mutually exclusive", ErrInvalidLine, i)
		}
		if l.DiscountPercent != nil && !validPercent(*l.DiscountPercent) {
			return fmt.Errorf("%w: line %d: discount percent must be within [0, 100]", ErrInvalidLine, i)
		}
		if l.DiscountAmount != nil && l.DiscountAmount.IsNegative() {
			return fmt.Errorf("%w: line %d: discount amount must not be negative", ErrInvalidLine, i)
		}
	}
	if g := r.General; g != nil {
		if g.Percent != nil && !validPercent(*g.Percent) {
			return fmt.Errorf("%w: percent must be within [0, 100]", ErrInvalidDiscount)
		}
		if g.Amount != nil && g.Amount.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", ErrInvalidDiscount)
		}
	}
	for i, adj := range r.Adjustments {
		if adj.Kind != AdjustSurcharge && adj.Kind != AdjustNetTotal {
			return fmt.Errorf("%w: adjustment %d: unknown kind %q", ErrInvalidAdjustment, i, adj.Kind)
		}
		if adj.Amount.IsNegative() {
			return fmt.Errorf("%w: adjustment %d: amount must not be negative", ErrInvalidAdjustment, i)
		}
	}
	return nil
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}
