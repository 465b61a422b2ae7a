package checkout

import (
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/pricing"
	"github.com/noah-isme/backend-caja/internal/promo"
)

// Handler exposes the cashier endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Location *time.Location
	Now      func() time.Time
}

// LineDTO is one basket line on the wire.
type LineDTO struct {
	Item            string           `json:"item" validate:"required,max=64"`
	Qty             int              `json:"qty" validate:"gt=0,lte=1000000"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	DiscountAmount  *money.Money     `json:"discount_amount,omitempty"`
}

// GeneralDTO is the order-wide discount on the wire.
type GeneralDTO struct {
	Percent *decimal.Decimal `json:"percent,omitempty"`
	Amount  *money.Money     `json:"amount,omitempty"`
}

// AdjustmentDTO is a caller-supplied provider adjustment on the wire.
type AdjustmentDTO struct {
	Provider string       `json:"provider,omitempty" validate:"max=64"`
	Kind     string       `json:"kind" validate:"required,oneof=surcharge net_total"`
	Amount   *money.Money `json:"amount" validate:"required"`
	Reason   string       `json:"reason,omitempty" validate:"max=200"`
}

// QuoteRequest is the body of POST /api/v1/cashier/quote.
type QuoteRequest struct {
	Lines       []LineDTO       `json:"lines" validate:"required,min=1,dive"`
	AsOf        string          `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
	General     *GeneralDTO     `json:"general,omitempty"`
	Adjustments []AdjustmentDTO `json:"adjustments,omitempty" validate:"dive"`
}

// PaymentDTO is the payment instruction on the wire.
type PaymentDTO struct {
	Method   string       `json:"method" validate:"required,oneof=cash efectivo debit credit transfer"`
	Tendered *money.Money `json:"tendered,omitempty"`
}

// CheckoutRequest is the body of POST /api/v1/cashier/checkout.
type CheckoutRequest struct {
	QuoteRequest
	Payment PaymentDTO `json:"payment"`
	Concept string     `json:"concept,omitempty" validate:"max=200"`
}

// Quote handles POST /api/v1/cashier/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req QuoteRequest
	if err := common.DecodeJSON(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	preq, err := h.pricingRequest(req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	order, err := h.Svc.Quote(r.Context(), preq)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, order)
}

// Checkout handles POST /api/v1/cashier/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	terminal, ok := common.TerminalID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "terminal token required", nil)
		return
	}
	var req CheckoutRequest
	if err := common.DecodeJSON(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	preq, err := h.pricingRequest(req.QuoteRequest)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	method, err := payment.ParseMethod(req.Payment.Method)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	seller, _ := common.UserID(r.Context())
	res, err := h.Svc.Checkout(r.Context(), Request{
		Terminal:    terminal,
		Basket:      preq.Basket,
		AsOf:        preq.AsOf,
		General:     preq.General,
		Adjustments: preq.Adjustments,
		Payment:     payment.Instruction{Method: method, Tendered: req.Payment.Tendered},
		Concept:     req.Concept,
		Seller:      seller,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, res)
}

func (h *Handler) pricingRequest(req QuoteRequest) (pricing.Request, error) {
	out := pricing.Request{AsOf: h.now()}
	if req.AsOf != "" {
		at, err := time.ParseInLocation(promo.DateLayout, req.AsOf, h.location())
		if err != nil {
			return pricing.Request{}, &common.FieldErrors{Fields: map[string]string{"as_of": "must be YYYY-MM-DD"}}
		}
		out.AsOf = at
	}
	out.Basket.Lines = make([]pricing.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		out.Basket.Lines = append(out.Basket.Lines, pricing.Line{
			ItemIdent:       strings.TrimSpace(l.Item),
			Qty:             l.Qty,
			DiscountPercent: l.DiscountPercent,
			DiscountAmount:  l.DiscountAmount,
		})
	}
	if req.General != nil {
		out.General = &pricing.GeneralDiscount{Percent: req.General.Percent, Amount: req.General.Amount}
	}
	for _, a := range req.Adjustments {
		out.Adjustments = append(out.Adjustments, pricing.Adjustment{
			ProviderIdent: strings.TrimSpace(a.Provider),
			Kind:          pricing.AdjustmentKind(a.Kind),
			Amount:        *a.Amount,
			Reason:        a.Reason,
		})
	}
	return out, nil
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().In(h.location())
	}
	return time.Now().In(h.location())
}

func (h *Handler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}
