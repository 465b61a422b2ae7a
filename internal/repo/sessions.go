package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-caja/internal/drawer"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/payment"
)

// SessionRepo persists drawer sessions and reads back their movements.
// At most one open session per terminal is enforced by a partial unique index.
type SessionRepo struct {
	DB DBTX
}

const sessionColumns = `id, terminal, state, amount_scale, opening_minor, opened_at, closed_at, closing_minor, declared_minor, discrepancy_minor, direction`

// SaveSession implements drawer.Store.
func (r SessionRepo) SaveSession(ctx context.Context, s drawer.Session) error {
	scale := s.Opening.Scale()
	var (
		discrepancy *int64
		direction   *string
	)
	if s.Discrepancy != nil {
		d, err := minorAt(s.Discrepancy.Difference, scale)
		if err != nil {
			return err
		}
		dir := string(s.Discrepancy.Direction)
		discrepancy, direction = &d, &dir
	}
	closing, err := optionalMinor(s.Closing, scale)
	if err != nil {
		return err
	}
	declared, err := optionalMinor(s.Declared, scale)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO drawer_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			closed_at = EXCLUDED.closed_at,
			closing_minor = EXCLUDED.closing_minor,
			declared_minor = EXCLUDED.declared_minor,
			discrepancy_minor = EXCLUDED.discrepancy_minor,
			direction = EXCLUDED.direction`,
		s.ID, s.Terminal, string(s.State), int16(scale), s.Opening.Minor(), s.OpenedAt,
		s.ClosedAt, closing, declared, discrepancy, direction,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: terminal %s", drawer.ErrAlreadyOpen, s.Terminal)
		}
		return fmt.Errorf("repo: save session: %w", err)
	}
	return nil
}

// ListOpenSessions implements drawer.Store.
func (r SessionRepo) ListOpenSessions(ctx context.Context) ([]drawer.Session, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+sessionColumns+` FROM drawer_sessions WHERE state = 'open' ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("repo: list open sessions: %w", err)
	}
	defer rows.Close()

	var out []drawer.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list open sessions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (drawer.Session, error) {
	var (
		s                            drawer.Session
		state                        string
		scale                        int16
		opening                      int64
		closedAt                     *time.Time
		closing, declared, discMinor *int64
		direction                    *string
	)
	if err := row.Scan(&s.ID, &s.Terminal, &state, &scale, &opening, &s.OpenedAt, &closedAt, &closing, &declared, &discMinor, &direction); err != nil {
		return drawer.Session{}, fmt.Errorf("repo: scan session: %w", err)
	}
	s.State = drawer.State(state)
	s.Opening = toMoney(opening, scale)
	s.ClosedAt = closedAt
	s.Closing = optionalMoney(closing, scale)
	s.Declared = optionalMoney(declared, scale)
	if discMinor != nil && direction != nil && s.Closing != nil && s.Declared != nil {
		s.Discrepancy = &drawer.Discrepancy{
			Expected:   *s.Closing,
			Declared:   *s.Declared,
			Difference: toMoney(*discMinor, scale),
			Direction:  drawer.Direction(*direction),
		}
	}
	return s, nil
}

// ListMovements implements drawer.Store.
func (r SessionRepo) ListMovements(ctx context.Context, sessionID uuid.UUID) ([]ledger.Movement, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+movementColumns+`
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repo: list movements: %w", err)
	}
	return scanMovements(rows)
}

const movementColumns = `id, session_id, seq, kind, amount_scale, amount_minor, method, concept, seller, at, receipt_id`

func scanMovements(rows pgx.Rows) ([]ledger.Movement, error) {
	defer rows.Close()
	var out []ledger.Movement
	for rows.Next() {
		var (
			mv           ledger.Movement
			seq          int32
			kind, method string
			scale        int16
			amount       int64
		)
		if err := rows.Scan(&mv.ID, &mv.SessionID, &seq, &kind, &scale, &amount, &method, &mv.Concept, &mv.Seller, &mv.At, &mv.ReceiptID); err != nil {
			return nil, fmt.Errorf("repo: scan movement: %w", err)
		}
		mv.Seq = int(seq)
		mv.Kind = ledger.Kind(kind)
		mv.Method = payment.Method(method)
		mv.Amount = toMoney(amount, scale)
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list movements: %w", err)
	}
	return out, nil
}
