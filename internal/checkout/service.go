package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/drawer"
	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/obs"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/pricing"
)

// ErrTerminalRequired is returned when a sale names no terminal.
var ErrTerminalRequired = fmt.Errorf("%w: terminal is required", common.ErrValidation)

// Pricer prices a basket.
type Pricer interface {
	Price(ctx context.Context, req pricing.Request) (pricing.PricedOrder, error)
}

// Drawer is the part of the drawer manager checkout needs.
type Drawer interface {
	Status(terminal string) (drawer.Session, bool)
	RecordMovement(ctx context.Context, sessionID uuid.UUID, entry ledger.Entry) (drawer.Ack, error)
}

// ReceiptWriter persists receipts that carry no drawer movement: non-cash
// sales and sales made with no open drawer.
type ReceiptWriter interface {
	SaveReceipt(ctx context.Context, r payment.Receipt) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// Request is a full sale as submitted by a terminal.
type Request struct {
	Terminal    string
	Basket      pricing.Basket
	AsOf        time.Time
	General     *pricing.GeneralDiscount
	Adjustments []pricing.Adjustment
	Payment     payment.Instruction
	Concept     string
	Seller      string
}

// Result is the outcome of a completed sale.
type Result struct {
	Receipt   payment.Receipt `json:"receipt"`
	SessionID *uuid.UUID      `json:"session_id,omitempty"`
	Movement  *drawer.Ack     `json:"movement,omitempty"`
}

// Service runs price, settle and record as one unit.
type Service struct {
	Pricer     Pricer
	Reconciler payment.Reconciler
	Drawer     Drawer
	Receipts   ReceiptWriter
	Events     Emitter
	Logger     zerolog.Logger
}

// Quote prices a basket without settling it.
func (s *Service) Quote(ctx context.Context, req pricing.Request) (pricing.PricedOrder, error) {
	if s == nil || s.Pricer == nil {
		return pricing.PricedOrder{}, errors.New("checkout service not configured")
	}
	return s.Pricer.Price(ctx, req)
}

// Checkout prices the basket, settles the payment and records the sale.
// Nothing is recorded unless pricing and settlement both succeed.
func (s *Service) Checkout(ctx context.Context, req Request) (res Result, err error) {
	if s == nil || s.Pricer == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("caja/checkout").Start(ctx, "checkout.Checkout")
	defer func() {
		obs.RecordCheckout(string(req.Payment.Method), outcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	req.Terminal = strings.TrimSpace(req.Terminal)
	if req.Terminal == "" {
		return Result{}, ErrTerminalRequired
	}
	span.SetAttributes(attribute.String("caja.terminal", req.Terminal), attribute.String("caja.method", string(req.Payment.Method)))

	order, err := s.Pricer.Price(ctx, pricing.Request{
		Basket:      req.Basket,
		AsOf:        req.AsOf,
		General:     req.General,
		Adjustments: req.Adjustments,
	})
	if err != nil {
		return Result{}, err
	}
	receipt, err := s.Reconciler.Settle(order, req.Payment)
	if err != nil {
		return Result{}, err
	}
	receipt.Terminal = req.Terminal
	receipt.Seller = strings.TrimSpace(req.Seller)
	receipt.Concept = strings.TrimSpace(req.Concept)
	res.Receipt = receipt

	session, open := s.drawerStatus(req.Terminal)
	if open {
		id := session.ID
		res.SessionID = &id
	}
	switch {
	case open && receipt.Method == payment.MethodCash && receipt.Total.IsPositive():
		ack, err := s.Drawer.RecordMovement(ctx, session.ID, ledger.Entry{
			Kind:    ledger.KindSale,
			Amount:  receipt.Total,
			Method:  receipt.Method,
			Concept: receipt.Concept,
			Seller:  receipt.Seller,
			At:      receipt.IssuedAt,
			Receipt: &receipt,
		})
		if err != nil {
			return Result{}, err
		}
		res.Movement = &ack
	case s.Receipts != nil:
		if err := s.Receipts.SaveReceipt(ctx, receipt); err != nil {
			return Result{}, fmt.Errorf("save receipt: %w", err)
		}
	}

	s.Logger.Info().
		Str("terminal", req.Terminal).
		Str("receipt_id", receipt.ID.String()).
		Str("method", string(receipt.Method)).
		Str("total", receipt.Total.String()).
		Bool("drawer", res.Movement != nil).
		Msg("sale completed")
	if s.Events != nil {
		if _, emitErr := s.Events.Emit(ctx, events.TopicSaleCompleted, receipt.ID, saleCompleted{
			ReceiptID: receipt.ID,
			Terminal:  receipt.Terminal,
			SessionID: res.SessionID,
			Method:    receipt.Method,
			Total:     receipt.Total,
			IssuedAt:  receipt.IssuedAt,
		}); emitErr != nil {
			s.Logger.Warn().Err(emitErr).Str("receipt_id", receipt.ID.String()).Msg("emit sale.completed")
		}
	}
	return res, nil
}

type saleCompleted struct {
	ReceiptID uuid.UUID      `json:"receipt_id"`
	Terminal  string         `json:"terminal"`
	SessionID *uuid.UUID     `json:"session_id,omitempty"`
	Method    payment.Method `json:"method"`
	Total     money.Money    `json:"total"`
	IssuedAt  time.Time      `json:"issued_at"`
}

func (s *Service) drawerStatus(terminal string) (drawer.Session, bool) {
	if s.Drawer == nil {
		return drawer.Session{}, false
	}
	return s.Drawer.Status(terminal)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, common.ErrValidation):
		return "invalid"
	case errors.Is(err, common.ErrNotFound):
		return "not_found"
	case errors.Is(err, common.ErrState):
		return "state"
	default:
		return "error"
	}
}
