package drawer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/money"
)

// State is the lifecycle state of a drawer session.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

var (
	// ErrAlreadyOpen is returned when the terminal already has an open session.
	ErrAlreadyOpen = fmt.Errorf("%w: drawer already open", common.ErrState)
	// ErrSessionNotOpen is returned for movements or a close on a closed session.
	ErrSessionNotOpen = fmt.Errorf("%w: drawer session not open", common.ErrState)
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = fmt.Errorf("%w: drawer session not found", common.ErrNotFound)
	// ErrTerminalRequired is returned when no terminal identifies the drawer.
	ErrTerminalRequired = fmt.Errorf("%w: terminal is required", common.ErrValidation)
	// ErrInvalidBalance is returned for a negative or out of range balance.
	ErrInvalidBalance = fmt.Errorf("%w: balance must not be negative", common.ErrValidation)
	// ErrCloseBeforeOpen is returned when a close is dated before its session opened.
	ErrCloseBeforeOpen = fmt.Errorf("%w: close precedes session open", common.ErrValidation)
)

// Direction tells whether the counted drawer is short or over.
type Direction string

const (
	DirectionShort Direction = "short"
	DirectionOver  Direction = "over"
)

// Discrepancy is attached to a closing report when the declared balance
// differs from the expected one. Difference is declared minus expected.
type Discrepancy struct {
	Expected   money.Money `json:"expected"`
	Declared   money.Money `json:"declared"`
	Difference money.Money `json:"difference"`
	Direction  Direction   `json:"direction"`
}

// Session is one open-to-close period of a terminal drawer.
type Session struct {
	ID          uuid.UUID    `json:"id"`
	Terminal    string       `json:"terminal"`
	State       State        `json:"state"`
	Opening     money.Money  `json:"opening"`
	OpenedAt    time.Time    `json:"opened_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
	Closing     *money.Money `json:"closing,omitempty"`
	Declared    *money.Money `json:"declared,omitempty"`
	Discrepancy *Discrepancy `json:"discrepancy,omitempty"`
}

// IsOpen reports whether the session accepts movements.
func (s Session) IsOpen() bool { return s.State == StateOpen }

// ClosingReport is the outcome of closing a session.
type ClosingReport struct {
	Session     Session       `json:"session"`
	Totals      ledger.Totals `json:"totals"`
	Expected    money.Money   `json:"expected"`
	Declared    *money.Money  `json:"declared,omitempty"`
	Discrepancy *Discrepancy  `json:"discrepancy,omitempty"`
}

// Ack confirms a recorded movement and the balance right after it.
type Ack struct {
	MovementID uuid.UUID   `json:"movement_id"`
	Seq        int         `json:"seq"`
	Balance    money.Money `json:"balance"`
}

// Store persists session rows.
type Store interface {
	SaveSession(ctx context.Context, s Session) error
	ListOpenSessions(ctx context.Context) ([]Session, error)
	ListMovements(ctx context.Context, sessionID uuid.UUID) ([]ledger.Movement, error)
}

// Locker serialises work across processes sharing a terminal.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

func discrepancyOf(expected, declared money.Money) (*Discrepancy, error) {
	diff, err := declared.Sub(expected)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBalance, err)
	}
	if diff.IsZero() {
		return nil, nil
	}
	d := &Discrepancy{Expected: expected, Declared: declared, Difference: diff, Direction: DirectionOver}
	if diff.IsNegative() {
		d.Direction = DirectionShort
	}
	return d, nil
}
