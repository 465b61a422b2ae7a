package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/promo"
)

// Line describes a basket line. DiscountPercent and DiscountAmount are mutually exclusive.
type Line struct {
	ItemIdent       string           `json:"item_ident"`
	Qty             int              `json:"qty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	DiscountAmount  *money.Money     `json:"discount_amount,omitempty"`
}

// Basket is the set of lines of a sale.
type Basket struct {
	Lines []Line `json:"lines"`
}

// GeneralDiscount applies to the whole order: percent first, then amount.
type GeneralDiscount struct {
	Percent *decimal.Decimal `json:"percent,omitempty"`
	Amount  *money.Money     `json:"amount,omitempty"`
}

// AdjustmentKind distinguishes surcharges from provider-funded net-total reductions.
type AdjustmentKind string

const (
	AdjustSurcharge AdjustmentKind = "surcharge"
	AdjustNetTotal  AdjustmentKind = "net_total"
)

// Adjustment is a caller-supplied provider-level change to the order total.
type Adjustment struct {
	ProviderIdent string         `json:"provider_ident,omitempty"`
	Kind          AdjustmentKind `json:"kind"`
	Amount        money.Money    `json:"amount"`
	Reason        string         `json:"reason,omitempty"`
}

// Request carries everything Price needs.
type Request struct {
	Basket      Basket
	AsOf        time.Time
	General     *GeneralDiscount
	Adjustments []Adjustment
}

// DiscountSource records where a line discount came from.
type DiscountSource string

const (
	SourceNone            DiscountSource = "none"
	SourceExplicitPercent DiscountSource = "explicit-percent"
	SourceExplicitAmount  DiscountSource = "explicit-amount"
	SourcePromotion       DiscountSource = "promotion"
)

// PricedLine is one line of a priced order with its discount attribution.
type PricedLine struct {
	ItemIdent       string           `json:"item_ident"`
	Name            string           `json:"name"`
	ProviderIdent   string           `json:"provider_ident,omitempty"`
	UnitPrice       money.Money      `json:"unit_price"`
	Qty             int              `json:"qty"`
	Subtotal        money.Money      `json:"subtotal"`
	Discount        money.Money      `json:"discount"`
	DiscountSource  DiscountSource   `json:"discount_source"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	PromotionID     *int64           `json:"promotion_id,omitempty"`
	PromotionKind   promo.Kind       `json:"promotion_kind,omitempty"`
	PromotionTarget promo.TargetKind `json:"promotion_target,omitempty"`
	FreeQty         int              `json:"free_qty,omitempty"`
	Total           money.Money      `json:"total"`
}

// PricedOrder is the full pricing breakdown of a basket.
//
// GrandTotal = max(0, LineSum - GeneralDiscount + Surcharges - NetTotalAdjustments).
type PricedOrder struct {
	AsOf                   time.Time        `json:"as_of"`
	Lines                  []PricedLine     `json:"lines"`
	Subtotal               money.Money      `json:"subtotal"`
	LineDiscounts          money.Money      `json:"line_discounts"`
	LineSum                money.Money      `json:"line_sum"`
	GeneralPercent         *decimal.Decimal `json:"general_percent,omitempty"`
	GeneralPercentDiscount money.Money      `json:"general_percent_discount"`
	GeneralAmountDiscount  money.Money      `json:"general_amount_discount"`
	GeneralDiscount        money.Money      `json:"general_discount"`
	Adjustments            []Adjustment     `json:"adjustments,omitempty"`
	Surcharges             money.Money      `json:"surcharges"`
	NetTotalAdjustments    money.Money      `json:"net_total_adjustments"`
	GrandTotal             money.Money      `json:"grand_total"`
}

// TotalDiscount is the sum of line and general discounts. Both are bounded by
// the order subtotal, so the sum cannot overflow once pricing succeeded.
func (o PricedOrder) TotalDiscount() money.Money {
	var sum money.Accumulator
	return sum.Add(o.LineDiscounts, o.GeneralDiscount)
}
