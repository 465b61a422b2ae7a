package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-caja/internal/money"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == codeUniqueViolation }

func isForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }

func toMoney(minor int64, scale int16) money.Money {
	return money.FromMinorUnits(minor, uint8(scale))
}

func optionalMoney(minor *int64, scale int16) *money.Money {
	if minor == nil {
		return nil
	}
	m := toMoney(*minor, scale)
	return &m
}

func optionalMinor(m *money.Money, scale uint8) (*int64, error) {
	if m == nil {
		return nil, nil
	}
	v, err := minorAt(*m, scale)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// minorAt returns the minor units of m at the row scale.
func minorAt(m money.Money, scale uint8) (int64, error) {
	r, err := m.Rescale(scale)
	if err != nil {
		return 0, fmt.Errorf("repo: %w", err)
	}
	return r.Minor(), nil
}
