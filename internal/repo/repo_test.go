package repo

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/catalog"
	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/drawer"
	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/money"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case **string:
			*p = r.values[i].(*string)
		case *int64:
			*p = r.values[i].(int64)
		case **int64:
			*p = r.values[i].(*int64)
		case *int16:
			*p = r.values[i].(int16)
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case **time.Time:
			*p = r.values[i].(*time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeDB struct {
	row     fakeRow
	execErr error
	sql     []string
	args    [][]any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.row
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func TestCatalogRepoGetItem(t *testing.T) {
	provider := "ACME"
	db := &fakeDB{row: fakeRow{values: []any{"A1", "Cafe", int64(2550), int16(2), &provider}}}
	it, err := CatalogRepo{DB: db}.GetItem(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, "ACME", it.ProviderIdent)
	require.Equal(t, int64(2550), it.UnitPrice.Minor())
	require.Equal(t, uint8(2), it.UnitPrice.Scale())
	require.Equal(t, []any{"A1"}, db.args[0])

	db = &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err = CatalogRepo{DB: db}.GetItem(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrItemNotFound)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = CatalogRepo{DB: db}.GetProvider(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrProviderNotFound)
}

func TestSaveSessionMapsOpenConflict(t *testing.T) {
	db := &fakeDB{execErr: &pgconn.PgError{Code: codeUniqueViolation}}
	s := drawer.Session{ID: uuid.New(), Terminal: "T1", State: drawer.StateOpen, Opening: money.FromMinorUnits(50000, 2), OpenedAt: time.Now()}
	err := SessionRepo{DB: db}.SaveSession(context.Background(), s)
	require.ErrorIs(t, err, drawer.ErrAlreadyOpen)

	db = &fakeDB{}
	closing := money.FromMinorUnits(140000, 2)
	declared := money.FromMinorUnits(139900, 2)
	s.State = drawer.StateClosed
	s.Closing, s.Declared = &closing, &declared
	s.Discrepancy = &drawer.Discrepancy{Expected: closing, Declared: declared, Difference: money.FromMinorUnits(-100, 2), Direction: drawer.DirectionShort}
	require.NoError(t, SessionRepo{DB: db}.SaveSession(context.Background(), s))
	args := db.args[0]
	require.Equal(t, "closed", args[2])
	require.Equal(t, int64(-100), *args[9].(*int64))
	require.Equal(t, "short", *args[10].(*string))
}

func TestScanSessionRebuildsDiscrepancy(t *testing.T) {
	id := uuid.New()
	opened := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	closed := opened.Add(8 * time.Hour)
	closing, declared, diff := int64(140000), int64(140500), int64(500)
	over := "over"
	row := fakeRow{values: []any{id, "T1", "closed", int16(2), int64(50000), opened, &closed, &closing, &declared, &diff, &over}}
	s, err := scanSession(row)
	require.NoError(t, err)
	require.False(t, s.IsOpen())
	require.Equal(t, int64(140000), s.Closing.Minor())
	require.NotNil(t, s.Discrepancy)
	require.Equal(t, drawer.DirectionOver, s.Discrepancy.Direction)
	require.Equal(t, int64(500), s.Discrepancy.Difference.Minor())

	row = fakeRow{values: []any{id, "T1", "open", int16(2), int64(50000), opened, (*time.Time)(nil), (*int64)(nil), (*int64)(nil), (*int64)(nil), (*string)(nil)}}
	s, err = scanSession(row)
	require.NoError(t, err)
	require.True(t, s.IsOpen())
	require.Nil(t, s.Closing)
	require.Nil(t, s.Discrepancy)
}

func TestSaveSessionRejectsAmountsOutsideRowScale(t *testing.T) {
	db := &fakeDB{}
	closing := money.FromMinorUnits(math.MaxInt64/10, 2)
	s := drawer.Session{ID: uuid.New(), Terminal: "T1", State: drawer.StateClosed, Opening: money.FromMinorUnits(0, 4), OpenedAt: time.Now(), Closing: &closing}
	err := SessionRepo{DB: db}.SaveSession(context.Background(), s)
	require.ErrorIs(t, err, money.ErrOverflow)
	require.Empty(t, db.sql)
}

func TestInsertDomainEventDefaultsPayload(t *testing.T) {
	db := &fakeDB{}
	ev, err := EventRepo{DB: db}.InsertDomainEvent(context.Background(), events.Event{ID: uuid.New(), Topic: events.TopicDrawerOpened, AggregateID: uuid.New()})
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
	require.Contains(t, db.sql[0], "ON CONFLICT (id) DO NOTHING")

	db = &fakeDB{execErr: errors.New("conn reset")}
	_, err = EventRepo{DB: db}.InsertDomainEvent(context.Background(), events.Event{ID: uuid.New(), Topic: events.TopicDrawerOpened})
	require.Error(t, err)
}

func TestPgCodeHelpers(t *testing.T) {
	wrapped := errors.Join(errors.New("ctx"), &pgconn.PgError{Code: codeForeignKeyViolation})
	require.True(t, isForeignKeyViolation(wrapped))
	require.False(t, isUniqueViolation(wrapped))
	require.Equal(t, "", pgCode(errors.New("plain")))
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/caja?sslmode=disable", migrateURL("postgres://u:p@db:5432/caja?sslmode=disable"))
	require.Equal(t, "pgx5://db/caja", migrateURL("postgresql://db/caja"))
	require.Equal(t, "pgx5://db/caja", migrateURL("pgx5://db/caja"))
	require.Error(t, Migrate("  "))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrationFS, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(schema), "drawer_sessions_one_open_idx")
}
