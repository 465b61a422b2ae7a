package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/payment"
)

// Kind is the type of drawer movement.
type Kind string

const (
	KindSale    Kind = "sale"
	KindExpense Kind = "expense"
)

var (
	// ErrInvalidMovement is returned for an entry that cannot be recorded.
	ErrInvalidMovement = fmt.Errorf("%w: invalid movement", common.ErrValidation)
	// ErrUnknownSession is returned when the ledger holds no book for a session.
	ErrUnknownSession = fmt.Errorf("%w: ledger session not found", common.ErrNotFound)
	// ErrSessionExists is returned by Begin for a session that already has a book.
	ErrSessionExists = fmt.Errorf("%w: ledger session already started", common.ErrState)
)

// Entry is what callers ask the ledger to record. Amount is signed:
// positive for sales, negative for expenses.
type Entry struct {
	Kind    Kind
	Amount  money.Money
	Method  payment.Method
	Concept string
	Seller  string
	At      time.Time
	Receipt *payment.Receipt
}

// Movement is an immutable ledger row.
type Movement struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Seq       int            `json:"seq"`
	Kind      Kind           `json:"kind"`
	Amount    money.Money    `json:"amount"`
	Method    payment.Method `json:"method"`
	Concept   string         `json:"concept,omitempty"`
	Seller    string         `json:"seller,omitempty"`
	At        time.Time      `json:"at"`
	ReceiptID *uuid.UUID     `json:"receipt_id,omitempty"`
}

// Totals summarises the movements of a session. Balance is the cash expected
// in the drawer: opening plus cash movements only. ByMethod covers every method.
type Totals struct {
	Opening  money.Money                    `json:"opening"`
	Sales    money.Money                    `json:"sales"`
	Expenses money.Money                    `json:"expenses"`
	ByMethod map[payment.Method]money.Money `json:"by_method"`
	Count    int                            `json:"count"`
	Balance  money.Money                    `json:"balance"`
}

// Journal persists a movement, together with its receipt for sales, atomically.
type Journal interface {
	AppendMovement(ctx context.Context, m Movement, receipt *payment.Receipt) error
}

type book struct {
	mu        sync.Mutex
	opening   money.Money
	movements []Movement
}

// Ledger keeps the ordered movements of every drawer session it knows.
type Ledger struct {
	Journal Journal
	NewID   func() uuid.UUID

	mu    sync.RWMutex
	books map[uuid.UUID]*book
}

// New returns a ledger writing through journal. A nil journal keeps movements in memory only.
func New(journal Journal) *Ledger {
	return &Ledger{Journal: journal, books: make(map[uuid.UUID]*book)}
}

// Begin starts an empty book for a freshly opened session.
func (l *Ledger) Begin(sessionID uuid.UUID, opening money.Money) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.books == nil {
		l.books = make(map[uuid.UUID]*book)
	}
	if _, ok := l.books[sessionID]; ok {
		return ErrSessionExists
	}
	l.books[sessionID] = &book{opening: opening}
	return nil
}

// Restore replaces the book of a session with previously persisted movements.
func (l *Ledger) Restore(sessionID uuid.UUID, opening money.Money, movements []Movement) {
	rows := append([]Movement(nil), movements...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.books == nil {
		l.books = make(map[uuid.UUID]*book)
	}
	l.books[sessionID] = &book{opening: opening, movements: rows}
}

// Append validates entry, writes it through the journal and then records it.
// A journal failure leaves the book untouched.
func (l *Ledger) Append(ctx context.Context, sessionID uuid.UUID, entry Entry) (Movement, error) {
	if err := entry.validate(); err != nil {
		return Movement{}, err
	}
	b, err := l.book(sessionID)
	if err != nil {
		return Movement{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	mv := Movement{
		ID:        l.newID(),
		SessionID: sessionID,
		Seq:       len(b.movements) + 1,
		Kind:      entry.Kind,
		Amount:    entry.Amount,
		Method:    entry.Method,
		Concept:   strings.TrimSpace(entry.Concept),
		Seller:    strings.TrimSpace(entry.Seller),
		At:        entry.At,
	}
	if mv.Method == "" {
		mv.Method = payment.MethodCash
	}
	if entry.Receipt != nil {
		id := entry.Receipt.ID
		mv.ReceiptID = &id
	}
	if _, err := Summarize(b.opening, append(b.movements[:len(b.movements):len(b.movements)], mv)); err != nil {
		return Movement{}, fmt.Errorf("%w: %w", ErrInvalidMovement, err)
	}
	if l.Journal != nil {
		if err := l.Journal.AppendMovement(ctx, mv, entry.Receipt); err != nil {
			return Movement{}, fmt.Errorf("journal movement: %w", err)
		}
	}
	b.movements = append(b.movements, mv)
	return mv, nil
}

// Movements returns a copy of the session movements in insertion order.
func (l *Ledger) Movements(sessionID uuid.UUID) ([]Movement, error) {
	b, err := l.book(sessionID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Movement(nil), b.movements...), nil
}

// RunningBalance is the opening balance plus every cash movement.
func (l *Ledger) RunningBalance(sessionID uuid.UUID) (money.Money, error) {
	t, err := l.Totals(sessionID)
	if err != nil {
		return money.Money{}, err
	}
	return t.Balance, nil
}

// Totals aggregates the session movements.
func (l *Ledger) Totals(sessionID uuid.UUID) (Totals, error) {
	b, err := l.book(sessionID)
	if err != nil {
		return Totals{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Summarize(b.opening, b.movements)
}

// Summarize folds movements over an opening balance. It fails with
// money.ErrOverflow when a sum leaves the int64 range.
func Summarize(opening money.Money, movements []Movement) (Totals, error) {
	zero := money.Zero(opening.Scale())
	t := Totals{
		Opening:  opening,
		Sales:    zero,
		Expenses: zero,
		ByMethod: make(map[payment.Method]money.Money),
		Balance:  opening,
	}
	var sum money.Accumulator
	for _, mv := range movements {
		t.Count++
		if mv.Method == payment.MethodCash {
			t.Balance = sum.Add(t.Balance, mv.Amount)
		}
		switch mv.Kind {
		case KindSale:
			t.Sales = sum.Add(t.Sales, mv.Amount)
		case KindExpense:
			t.Expenses = sum.Add(t.Expenses, mv.Amount)
		}
		byMethod, ok := t.ByMethod[mv.Method]
		if !ok {
			byMethod = zero
		}
		t.ByMethod[mv.Method] = sum.Add(byMethod, mv.Amount)
	}
	if err := sum.Err(); err != nil {
		return Totals{}, err
	}
	return t, nil
}

// Forget drops a session book. The drawer manager calls it once a closed
// session is persisted, after which its movements are read from the store.
func (l *Ledger) Forget(sessionID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.books, sessionID)
}

func (l *Ledger) book(sessionID uuid.UUID) (*book, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.books[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return b, nil
}

func (l *Ledger) newID() uuid.UUID {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.New()
}

func (e Entry) validate() error {
	switch e.Kind {
	case KindSale:
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: sale amount must be positive", ErrInvalidMovement)
		}
	case KindExpense:
		if !e.Amount.IsNegative() {
			return fmt.Errorf("%w: expense amount must be negative", ErrInvalidMovement)
		}
		if e.Receipt != nil {
			return fmt.Errorf("%w: expenses carry no receipt", ErrInvalidMovement)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMovement, e.Kind)
	}
	if e.Method != "" {
		if _, err := payment.ParseMethod(string(e.Method)); err != nil {
			return errors.Join(ErrInvalidMovement, err)
		}
	}
	return nil
}
