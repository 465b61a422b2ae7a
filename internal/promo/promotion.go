package promo

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-caja/internal/common"
)

var (
	// ErrInvalidPromotion is returned when a promotion definition is contradictory.
	ErrInvalidPromotion = fmt.Errorf("promotion %w", common.ErrValidation)
	// ErrInvalidWindow indicates a promotion whose start date falls after its end date.
	ErrInvalidWindow = fmt.Errorf("%w: starts after ends", ErrInvalidPromotion)
)

// DateLayout is the calendar-date format used for promotion windows.
const DateLayout = "2006-01-02"

// TargetKind selects whether a promotion applies to one item or to every item of a provider.
type TargetKind string

const (
	TargetItem     TargetKind = "item"
	TargetProvider TargetKind = "provider"
)

// Kind is the discount mechanism of a promotion.
type Kind string

const (
	KindPercent Kind = "percent-discount"
	KindBundle  Kind = "bundle-bonus"
)

// Bundle grants FreeQty units at no charge once MinimumQty units are bought.
type Bundle struct {
	MinimumQty int `json:"minimum_purchase_qty"`
	FreeQty    int `json:"free_qty"`
}

// Promotion captures the runtime constraints of a promotion.
type Promotion struct {
	ID          int64           `json:"id"`
	Target      TargetKind      `json:"target"`
	TargetIdent string          `json:"target_ident"`
	Kind        Kind            `json:"kind"`
	Percent     decimal.Decimal `json:"percent"`
	Bundle      Bundle          `json:"bundle"`
	Starts      time.Time       `json:"starts"`
	Ends        time.Time       `json:"ends"`
	Enabled     bool            `json:"enabled"`
}

// NewPromotion builds a promotion and validates it. starts and ends are calendar
// dates in DateLayout.
func NewPromotion(id int64, target TargetKind, ident string, kind Kind, percent decimal.Decimal, bundle Bundle, starts, ends string, enabled bool) (Promotion, error) {
	s, err := time.Parse(DateLayout, starts)
	if err != nil {
		return Promotion{}, fmt.Errorf("%w: starts: %v", ErrInvalidPromotion, err)
	}
	e, err := time.Parse(DateLayout, ends)
	if err != nil {
		return Promotion{}, fmt.Errorf("%w: ends: %v", ErrInvalidPromotion, err)
	}
	p := Promotion{
		ID:          id,
		Target:      target,
		TargetIdent: ident,
		Kind:        kind,
		Percent:     percent,
		Bundle:      bundle,
		Starts:      s,
		Ends:        e,
		Enabled:     enabled,
	}
	if err := p.Validate(); err != nil {
		return Promotion{}, err
	}
	return p, nil
}

// Validate ensures the promotion is internally consistent. The window is never
// silently swapped.
func (p Promotion) Validate() error {
	switch p.Target {
	case TargetItem, TargetProvider:
	default:
		return fmt.Errorf("%w: unknown target %q", ErrInvalidPromotion, p.Target)
	}
	if p.TargetIdent == "" {
		return fmt.Errorf("%w: target ident is required", ErrInvalidPromotion)
	}
	if dayNumber(p.Starts) > dayNumber(p.Ends) {
		return ErrInvalidWindow
	}
	switch p.Kind {
	case KindPercent:
		if !p.Percent.IsPositive() || p.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percent must be in (0, 100]", ErrInvalidPromotion)
		}
	case KindBundle:
		if p.Bundle.MinimumQty < 1 || p.Bundle.FreeQty < 1 || p.Bundle.FreeQty > p.Bundle.MinimumQty {
			return fmt.Errorf("%w: bundle requires 1 <= free qty <= minimum qty", ErrInvalidPromotion)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPromotion, p.Kind)
	}
	return nil
}

// ActiveOn reports whether the promotion is enabled and its inclusive window
// contains the calendar date of at.
func (p Promotion) ActiveOn(at time.Time) bool {
	if !p.Enabled {
		return false
	}
	day := dayNumber(at)
	return dayNumber(p.Starts) <= day && day <= dayNumber(p.Ends)
}

// Magnitude is the nominal discount percent used to rank competing promotions.
// Bundles rank by the share of the threshold they give away.
func (p Promotion) Magnitude() decimal.Decimal {
	switch p.Kind {
	case KindPercent:
		return p.Percent
	case KindBundle:
		if p.Bundle.MinimumQty <= 0 {
			return decimal.Zero
		}
		return decimal.NewFromInt(int64(p.Bundle.FreeQty * 100)).Div(decimal.NewFromInt(int64(p.Bundle.MinimumQty)))
	default:
		return decimal.Zero
	}
}

// IsInvalid reports whether err came from promotion validation.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidPromotion)
}

func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
