package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/pricing"
)

// ErrSequenceConflict is returned when a movement reuses a sequence number of its session.
var ErrSequenceConflict = fmt.Errorf("%w: movement sequence already recorded", common.ErrState)

// Journal writes cash movements and receipts.
type Journal struct {
	DB DBTX
}

// AppendMovement implements ledger.Journal. A sale's receipt and its movement
// are committed in one transaction.
func (j Journal) AppendMovement(ctx context.Context, mv ledger.Movement, receipt *payment.Receipt) error {
	return pgx.BeginFunc(ctx, j.DB, func(tx pgx.Tx) error {
		if receipt != nil {
			if err := insertReceipt(ctx, tx, *receipt, &mv.SessionID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cash_movements (id, session_id, seq, kind, amount_scale, amount_minor, method, concept, seller, at, receipt_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			mv.ID, mv.SessionID, int32(mv.Seq), string(mv.Kind), int16(mv.Amount.Scale()), mv.Amount.Minor(),
			string(mv.Method), mv.Concept, mv.Seller, mv.At, mv.ReceiptID,
		)
		switch {
		case err == nil:
			return nil
		case isUniqueViolation(err):
			return fmt.Errorf("%w: session %s seq %d", ErrSequenceConflict, mv.SessionID, mv.Seq)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: %s", ledger.ErrUnknownSession, mv.SessionID)
		default:
			return fmt.Errorf("repo: append movement: %w", err)
		}
	})
}

// SaveReceipt stores a receipt that is not tied to a drawer movement.
func (j Journal) SaveReceipt(ctx context.Context, r payment.Receipt) error {
	return insertReceipt(ctx, j.DB, r, nil)
}

// ListReceipts returns the receipts issued within [from, to], oldest first.
func (j Journal) ListReceipts(ctx context.Context, from, to time.Time) ([]payment.Receipt, error) {
	rows, err := j.DB.Query(ctx, `
		SELECT id, terminal, seller, concept, method, amount_scale, total_minor, tendered_minor, change_minor, priced_order, issued_at
		FROM receipts
		WHERE issued_at >= $1 AND issued_at <= $2
		ORDER BY issued_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("repo: list receipts: %w", err)
	}
	defer rows.Close()

	var out []payment.Receipt
	for rows.Next() {
		var (
			r                       payment.Receipt
			method                  string
			scale                   int16
			total, tendered, change int64
			order                   []byte
		)
		if err := rows.Scan(&r.ID, &r.Terminal, &r.Seller, &r.Concept, &method, &scale, &total, &tendered, &change, &order, &r.IssuedAt); err != nil {
			return nil, fmt.Errorf("repo: scan receipt: %w", err)
		}
		if err := json.Unmarshal(order, &r.Order); err != nil {
			return nil, fmt.Errorf("repo: receipt %s order: %w", r.ID, err)
		}
		r.Method = payment.Method(method)
		r.Total = toMoney(total, scale)
		r.Tendered = toMoney(tendered, scale)
		r.Change = toMoney(change, scale)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list receipts: %w", err)
	}
	return out, nil
}

// ListMovements returns the movements of kind recorded within [from, to] across
// every session, oldest first.
func (j Journal) ListMovements(ctx context.Context, from, to time.Time, kind ledger.Kind) ([]ledger.Movement, error) {
	rows, err := j.DB.Query(ctx, `
		SELECT `+movementColumns+`
		FROM cash_movements
		WHERE kind = $1 AND at >= $2 AND at <= $3
		ORDER BY at, session_id, seq`, string(kind), from, to)
	if err != nil {
		return nil, fmt.Errorf("repo: list movements: %w", err)
	}
	return scanMovements(rows)
}

func insertReceipt(ctx context.Context, db DBTX, r payment.Receipt, sessionID *uuid.UUID) error {
	order, err := encodeOrder(r.Order)
	if err != nil {
		return err
	}
	scale := r.Total.Scale()
	tendered, err := minorAt(r.Tendered, scale)
	if err != nil {
		return err
	}
	change, err := minorAt(r.Change, scale)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO receipts (id, session_id, terminal, seller, concept, method, amount_scale, total_minor, tendered_minor, change_minor, priced_order, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, sessionID, r.Terminal, r.Seller, r.Concept, string(r.Method), int16(scale),
		r.Total.Minor(), tendered, change, order, r.IssuedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: receipt %s already stored", common.ErrState, r.ID)
		}
		return fmt.Errorf("repo: insert receipt: %w", err)
	}
	return nil
}

func encodeOrder(o pricing.PricedOrder) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("repo: encode priced order: %w", err)
	}
	return b, nil
}
