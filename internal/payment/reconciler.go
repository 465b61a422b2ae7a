package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/pricing"
)

// Method is how a sale is paid.
type Method string

const (
	MethodCash     Method = "cash"
	MethodDebit    Method = "debit"
	MethodCredit   Method = "credit"
	MethodTransfer Method = "transfer"
)

// ParseMethod normalises a method name. The legacy "efectivo" label maps to cash.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", "efectivo":
		return MethodCash, nil
	case "debit":
		return MethodDebit, nil
	case "credit":
		return MethodCredit, nil
	case "transfer":
		return MethodTransfer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

var (
	// ErrUnknownMethod is returned for a payment method outside the supported set.
	ErrUnknownMethod = fmt.Errorf("%w: unknown payment method", common.ErrValidation)
	// ErrTenderedRequired is returned when a cash payment carries no tendered amount.
	ErrTenderedRequired = fmt.Errorf("%w: cash payment requires amount tendered", common.ErrValidation)
	// ErrInvalidTender is returned when the tendered amount cannot be settled against the total.
	ErrInvalidTender = fmt.Errorf("%w: tendered amount out of range", common.ErrValidation)
)

// InsufficientPaymentError reports cash tendered below the order total.
type InsufficientPaymentError struct {
	Total     money.Money
	Tendered  money.Money
	Shortfall money.Money
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: tendered %s of %s, short %s", e.Tendered, e.Total, e.Shortfall)
}

// Unwrap classifies the error as ErrInsufficientPayment.
func (e *InsufficientPaymentError) Unwrap() error { return common.ErrInsufficientPayment }

// ErrorDetails exposes the shortfall to the transport layer.
func (e *InsufficientPaymentError) ErrorDetails() any {
	return map[string]any{"total": e.Total, "tendered": e.Tendered, "shortfall": e.Shortfall}
}

// Instruction tells the reconciler how the customer pays.
type Instruction struct {
	Method   Method       `json:"method"`
	Tendered *money.Money `json:"tendered,omitempty"`
}

// Receipt is the settled outcome of a sale.
type Receipt struct {
	ID       uuid.UUID           `json:"id"`
	Order    pricing.PricedOrder `json:"order"`
	Total    money.Money         `json:"total"`
	Method   Method              `json:"method"`
	Tendered money.Money         `json:"tendered"`
	Change   money.Money         `json:"change"`
	IssuedAt time.Time           `json:"issued_at"`
	Terminal string              `json:"terminal,omitempty"`
	Seller   string              `json:"seller,omitempty"`
	Concept  string              `json:"concept,omitempty"`
}

// Reconciler validates and settles payments against priced orders.
type Reconciler struct {
	Now   func() time.Time
	NewID func() uuid.UUID
}

// Settle checks the payment against the order and produces a receipt.
// Card and transfer payments are accepted as-is; any surcharge must already be
// part of the order total.
func (r Reconciler) Settle(order pricing.PricedOrder, in Instruction) (Receipt, error) {
	total := order.GrandTotal
	receipt := Receipt{
		ID:       r.newID(),
		Order:    order,
		Total:    total,
		Method:   in.Method,
		Tendered: total,
		Change:   money.Zero(total.Scale()),
		IssuedAt: r.now(),
	}
	switch in.Method {
	case MethodCash:
		if in.Tendered == nil {
			return Receipt{}, ErrTenderedRequired
		}
		tendered := *in.Tendered
		change, err := tendered.Sub(total)
		if err != nil {
			return Receipt{}, fmt.Errorf("%w: %w", ErrInvalidTender, err)
		}
		if change.IsNegative() {
			return Receipt{}, &InsufficientPaymentError{Total: total, Tendered: tendered, Shortfall: change.Neg()}
		}
		receipt.Tendered = tendered
		receipt.Change = change
	case MethodDebit, MethodCredit, MethodTransfer:
	default:
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownMethod, in.Method)
	}
	return receipt, nil
}

func (r Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Reconciler) newID() uuid.UUID {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.New()
}
