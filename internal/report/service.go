package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/pricing"
	"github.com/noah-isme/backend-caja/internal/promo"
)

// ErrInvalidRange is returned when the report range ends before it starts.
var ErrInvalidRange = fmt.Errorf("%w: from_date must not be after to_date", common.ErrValidation)

// Source lists receipts and drawer movements recorded between two instants, inclusive.
type Source interface {
	ListReceipts(ctx context.Context, from, to time.Time) ([]payment.Receipt, error)
	ListMovements(ctx context.Context, from, to time.Time, kind ledger.Kind) ([]ledger.Movement, error)
}

// Line is one sold line with its discount attribution.
type Line struct {
	Item        string                 `json:"item"`
	Name        string                 `json:"name"`
	Provider    string                 `json:"provider,omitempty"`
	UnitPrice   money.Money            `json:"unit_price"`
	Qty         int                    `json:"qty"`
	Discount    money.Money            `json:"discount"`
	Source      pricing.DiscountSource `json:"discount_source"`
	PromotionID *int64                 `json:"promotion_id,omitempty"`
	Promotion   promo.Kind             `json:"promotion,omitempty"`
	Total       money.Money            `json:"total"`
}

// Sale is one receipt as shown in the caja report.
type Sale struct {
	ReceiptID              uuid.UUID      `json:"receipt_id"`
	IssuedAt               time.Time      `json:"issued_at"`
	Terminal               string         `json:"terminal"`
	Seller                 string         `json:"seller,omitempty"`
	Concept                string         `json:"concept,omitempty"`
	Method                 payment.Method `json:"method"`
	Subtotal               money.Money    `json:"subtotal"`
	LineDiscounts          money.Money    `json:"line_discounts"`
	GeneralPercentDiscount money.Money    `json:"general_percent_discount"`
	GeneralAmountDiscount  money.Money    `json:"general_amount_discount"`
	GeneralDiscount        money.Money    `json:"general_discount"`
	TotalDiscount          money.Money    `json:"total_discount"`
	Surcharges             money.Money    `json:"surcharges"`
	NetTotalAdjustments    money.Money    `json:"net_total_adjustments"`
	Total                  money.Money    `json:"total"`
	Tendered               money.Money    `json:"tendered"`
	Change                 money.Money    `json:"change"`
	Lines                  []Line         `json:"lines"`
}

// Expense is one drawer outflow. Amount keeps the ledger sign and is negative.
type Expense struct {
	MovementID uuid.UUID      `json:"movement_id"`
	SessionID  uuid.UUID      `json:"session_id"`
	Kind       ledger.Kind    `json:"kind"`
	At         time.Time      `json:"at"`
	Concept    string         `json:"concept"`
	Method     payment.Method `json:"method"`
	Seller     string         `json:"seller,omitempty"`
	Amount     money.Money    `json:"amount"`
}

// Totals aggregates the sales and expenses in range. Expenses is signed.
type Totals struct {
	Count         int                            `json:"count"`
	Subtotal      money.Money                    `json:"subtotal"`
	TotalDiscount money.Money                    `json:"total_discount"`
	Surcharges    money.Money                    `json:"surcharges"`
	Total         money.Money                    `json:"total"`
	ByMethod      map[payment.Method]money.Money `json:"by_method"`
	ExpenseCount  int                            `json:"expense_count"`
	Expenses      money.Money                    `json:"expenses"`
}

// Report is the caja report for a date range.
type Report struct {
	From     string    `json:"from_date"`
	To       string    `json:"to_date"`
	Sales    []Sale    `json:"sales"`
	Expenses []Expense `json:"expenses"`
	Totals   Totals    `json:"totals"`
}

// Service builds caja reports, caching them when a cache is configured.
type Service struct {
	Source   Source
	Cache    *Cache
	Location *time.Location
	Scale    uint8
	Logger   zerolog.Logger
}

// Caja returns every sale issued on the calendar days from..to in the service location.
func (s *Service) Caja(ctx context.Context, from, to time.Time) (Report, error) {
	if s == nil || s.Source == nil {
		return Report{}, errors.New("report service not configured")
	}
	loc := s.location()
	start := dayStart(from, loc)
	end := dayStart(to, loc)
	if start.After(end) {
		return Report{}, ErrInvalidRange
	}
	fromKey, toKey := start.Format(promo.DateLayout), end.Format(promo.DateLayout)

	if s.Cache != nil {
		var cached Report
		hit, err := s.Cache.Get(ctx, fromKey, toKey, &cached)
		if err != nil {
			s.Logger.Warn().Err(err).Str("from", fromKey).Str("to", toKey).Msg("report cache read")
		} else if hit {
			return cached, nil
		}
	}

	last := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	receipts, err := s.Source.ListReceipts(ctx, start, last)
	if err != nil {
		return Report{}, fmt.Errorf("list receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool { return receipts[i].IssuedAt.Before(receipts[j].IssuedAt) })
	expenses, err := s.Source.ListMovements(ctx, start, last, ledger.KindExpense)
	if err != nil {
		return Report{}, fmt.Errorf("list expenses: %w", err)
	}
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].At.Before(expenses[j].At) })

	out := Report{
		From:     fromKey,
		To:       toKey,
		Sales:    make([]Sale, 0, len(receipts)),
		Expenses: make([]Expense, 0, len(expenses)),
		Totals:   s.emptyTotals(),
	}
	var sum money.Accumulator
	for _, r := range receipts {
		sale := saleOf(r)
		out.Sales = append(out.Sales, sale)
		out.Totals.addSale(&sum, sale)
	}
	for _, mv := range expenses {
		e := expenseOf(mv)
		out.Expenses = append(out.Expenses, e)
		out.Totals.ExpenseCount++
		out.Totals.Expenses = sum.Add(out.Totals.Expenses, e.Amount)
	}
	if err := sum.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: report totals: %w", common.ErrValidation, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, fromKey, toKey, out); err != nil {
			s.Logger.Warn().Err(err).Str("from", fromKey).Str("to", toKey).Msg("report cache write")
		}
	}
	return out, nil
}

func (s *Service) emptyTotals() Totals {
	zero := money.Zero(s.scale())
	return Totals{
		Subtotal:      zero,
		TotalDiscount: zero,
		Surcharges:    zero,
		Total:         zero,
		ByMethod:      make(map[payment.Method]money.Money),
		Expenses:      zero,
	}
}

func (t *Totals) addSale(sum *money.Accumulator, sale Sale) {
	t.Count++
	t.Subtotal = sum.Add(t.Subtotal, sale.Subtotal)
	t.TotalDiscount = sum.Add(t.TotalDiscount, sale.TotalDiscount)
	t.Surcharges = sum.Add(t.Surcharges, sale.Surcharges)
	t.Total = sum.Add(t.Total, sale.Total)
	byMethod, ok := t.ByMethod[sale.Method]
	if !ok {
		byMethod = money.Zero(sale.Total.Scale())
	}
	t.ByMethod[sale.Method] = sum.Add(byMethod, sale.Total)
}

func expenseOf(mv ledger.Movement) Expense {
	return Expense{
		MovementID: mv.ID,
		SessionID:  mv.SessionID,
		Kind:       mv.Kind,
		At:         mv.At,
		Concept:    mv.Concept,
		Method:     mv.Method,
		Seller:     mv.Seller,
		Amount:     mv.Amount,
	}
}

func saleOf(r payment.Receipt) Sale {
	o := r.Order
	sale := Sale{
		ReceiptID:              r.ID,
		IssuedAt:               r.IssuedAt,
		Terminal:               r.Terminal,
		Seller:                 r.Seller,
		Concept:                r.Concept,
		Method:                 r.Method,
		Subtotal:               o.Subtotal,
		LineDiscounts:          o.LineDiscounts,
		GeneralPercentDiscount: o.GeneralPercentDiscount,
		GeneralAmountDiscount:  o.GeneralAmountDiscount,
		GeneralDiscount:        o.GeneralDiscount,
		TotalDiscount:          o.TotalDiscount(),
		Surcharges:             o.Surcharges,
		NetTotalAdjustments:    o.NetTotalAdjustments,
		Total:                  r.Total,
		Tendered:               r.Tendered,
		Change:                 r.Change,
		Lines:                  make([]Line, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		sale.Lines = append(sale.Lines, Line{
			Item:        l.ItemIdent,
			Name:        l.Name,
			Provider:    l.ProviderIdent,
			UnitPrice:   l.UnitPrice,
			Qty:         l.Qty,
			Discount:    l.Discount,
			Source:      l.DiscountSource,
			PromotionID: l.PromotionID,
			Promotion:   l.PromotionKind,
			Total:       l.Total,
		})
	}
	return sale
}

func (s *Service) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

func (s *Service) scale() uint8 {
	if s.Scale == 0 {
		return money.DefaultScale
	}
	return s.Scale
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
