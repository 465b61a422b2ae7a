package drawer_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/drawer"
	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/lock"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/payment"
)

type memoryStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]drawer.Session
	movements map[uuid.UUID][]ledger.Movement
	failSave  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: map[uuid.UUID]drawer.Session{}, movements: map[uuid.UUID][]ledger.Movement{}}
}

func (s *memoryStore) SaveSession(_ context.Context, sess drawer.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("store unavailable")
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memoryStore) ListOpenSessions(context.Context) ([]drawer.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []drawer.Session
	for _, sess := range s.sessions {
		if sess.IsOpen() {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *memoryStore) ListMovements(_ context.Context, id uuid.UUID) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Movement(nil), s.movements[id]...), nil
}

func (s *memoryStore) AppendMovement(_ context.Context, m ledger.Movement, _ *payment.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.SessionID] = append(s.movements[m.SessionID], m)
	return nil
}

func mxn(minor int64) money.Money { return money.FromMinorUnits(minor, 2) }

func newManager(store *memoryStore, bus drawer.Emitter) *drawer.Manager {
	return drawer.NewManager(drawer.Config{
		Ledger: ledger.New(store),
		Store:  store,
		Events: bus,
	})
}

func TestRoundTripWithoutDeclaredBalance(t *testing.T) {
	store := newMemoryStore()
	eventStore := &events.MemoryStore{}
	m := newManager(store, &events.Bus{Store: eventStore})
	ctx := context.Background()

	s, err := m.Open(ctx, "T1", mxn(50000), time.Time{})
	require.NoError(t, err)
	_, err = m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(120000), Method: payment.MethodCash})
	require.NoError(t, err)
	ack, err := m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindExpense, Amount: mxn(-30000), Concept: "hielo"})
	require.NoError(t, err)
	require.Equal(t, 2, ack.Seq)
	require.Equal(t, "1400.00", ack.Balance.String())

	bal, err := m.RunningBalance(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "1400.00", bal.String())

	require.Equal(t, 1, m.OpenCount())
	report, err := m.Close(ctx, s.ID, nil, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 0, m.OpenCount())
	require.Equal(t, "1400.00", report.Expected.String())
	require.Nil(t, report.Discrepancy)
	require.Equal(t, drawer.StateClosed, report.Session.State)
	require.Equal(t, "1400.00", report.Session.Closing.String())

	require.Equal(t, []string{events.TopicDrawerOpened, events.TopicExpenseRecorded, events.TopicDrawerClosed}, eventStore.Topics())
	require.Equal(t, drawer.StateClosed, store.sessions[s.ID].State)
}

func TestCloseReportsDiscrepancyWithoutBlocking(t *testing.T) {
	eventStore := &events.MemoryStore{}
	m := newManager(newMemoryStore(), &events.Bus{Store: eventStore})
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(10000), time.Time{})
	require.NoError(t, err)

	declared := mxn(9500)
	report, err := m.Close(ctx, s.ID, &declared, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, report.Discrepancy)
	require.Equal(t, drawer.DirectionShort, report.Discrepancy.Direction)
	require.Equal(t, int64(-500), report.Discrepancy.Difference.Minor())
	require.Equal(t, int64(10000), report.Session.Closing.Minor())
	require.Contains(t, eventStore.Topics(), events.TopicDrawerDiscrepancy)

	s2, err := m.Open(ctx, "T1", mxn(0), time.Time{})
	require.NoError(t, err)
	over := mxn(1)
	report, err = m.Close(ctx, s2.ID, &over, time.Time{})
	require.NoError(t, err)
	require.Equal(t, drawer.DirectionOver, report.Discrepancy.Direction)
}

func TestIllegalTransitions(t *testing.T) {
	m := newManager(newMemoryStore(), nil)
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(100), time.Time{})
	require.NoError(t, err)

	_, err = m.Open(ctx, "T1", mxn(100), time.Time{})
	require.ErrorIs(t, err, drawer.ErrAlreadyOpen)
	require.ErrorIs(t, err, common.ErrState)

	_, err = m.Open(ctx, "T2", mxn(100), time.Time{})
	require.NoError(t, err)

	_, err = m.Close(ctx, s.ID, nil, time.Time{})
	require.NoError(t, err)
	_, err = m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(10)})
	require.ErrorIs(t, err, drawer.ErrSessionNotOpen)
	_, err = m.Close(ctx, s.ID, nil, time.Time{})
	require.ErrorIs(t, err, drawer.ErrSessionNotOpen)

	_, err = m.RecordMovement(ctx, uuid.New(), ledger.Entry{Kind: ledger.KindSale, Amount: mxn(10)})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = m.Open(ctx, " ", mxn(1), time.Time{})
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = m.Open(ctx, "T3", mxn(-1), time.Time{})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestStatusIsPure(t *testing.T) {
	m := newManager(newMemoryStore(), nil)
	s, ok := m.Status("T1")
	require.False(t, ok)
	require.Equal(t, drawer.StateClosed, s.State)

	opened, err := m.Open(context.Background(), "T1", mxn(100), time.Time{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		s, ok = m.Status("T1")
		require.True(t, ok)
		require.Equal(t, opened, s)
	}
}

func TestConcurrentCloseFirstWins(t *testing.T) {
	m := newManager(newMemoryStore(), nil)
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(100), time.Time{})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Close(ctx, s.ID, nil, time.Time{})
		}(i)
	}
	wg.Wait()
	var ok, notOpen int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, drawer.ErrSessionNotOpen):
			notOpen++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, notOpen)
}

func TestConcurrentMovementsAreSerialized(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := drawer.NewManager(drawer.Config{
		Locker:  lock.Locker{R: client, RetryBackoff: time.Millisecond, Prefix: "caja:lock:"},
		LockTTL: time.Second,
	})
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(0), time.Time{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(100)})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	movements, err := m.Movements(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, movements, 20)
	for i, mv := range movements {
		require.Equal(t, i+1, mv.Seq)
	}
	bal, err := m.RunningBalance(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2000), bal.Minor())
	require.False(t, mr.Exists("caja:lock:drawer:T1"))
}

func TestStoreFailureLeavesStateUnchanged(t *testing.T) {
	store := newMemoryStore()
	m := newManager(store, nil)
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(100), time.Time{})
	require.NoError(t, err)

	store.failSave = true
	_, err = m.Close(ctx, s.ID, nil, time.Time{})
	require.Error(t, err)
	cur, ok := m.Status("T1")
	require.True(t, ok)
	require.Equal(t, drawer.StateOpen, cur.State)
}

func TestRestoreReloadsOpenSessions(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	first := newManager(store, nil)
	s, err := first.Open(ctx, "T1", mxn(50000), time.Time{})
	require.NoError(t, err)
	_, err = first.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(120000)})
	require.NoError(t, err)

	second := newManager(store, nil)
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, second.OpenCount())
	cur, ok := second.Status("T1")
	require.True(t, ok)
	require.Equal(t, s.ID, cur.ID)
	bal, err := second.RunningBalance(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "1700.00", bal.String())

	_, err = second.Open(ctx, "T1", mxn(0), time.Time{})
	require.ErrorIs(t, err, drawer.ErrAlreadyOpen)
}

func TestClosedSessionStatementReadsStore(t *testing.T) {
	store := newMemoryStore()
	m := newManager(store, nil)
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(1000), time.Time{})
	require.NoError(t, err)
	_, err = m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(500), Method: payment.MethodCash})
	require.NoError(t, err)
	_, err = m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(700), Method: payment.MethodDebit})
	require.NoError(t, err)
	_, err = m.Close(ctx, s.ID, nil, time.Time{})
	require.NoError(t, err)

	totals, movements, err := m.Statement(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, "15.00", totals.Balance.String())
	require.Equal(t, "12.00", totals.Sales.String())

	_, err = m.RecordMovement(ctx, s.ID, ledger.Entry{Kind: ledger.KindSale, Amount: mxn(1)})
	require.ErrorIs(t, err, drawer.ErrSessionNotOpen)
}

func TestCloseBeforeOpenRejected(t *testing.T) {
	m := newManager(newMemoryStore(), nil)
	ctx := context.Background()
	opened := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, err := m.Open(ctx, "T1", mxn(0), opened)
	require.NoError(t, err)

	_, err = m.Close(ctx, s.ID, nil, opened.Add(-time.Hour))
	require.ErrorIs(t, err, drawer.ErrCloseBeforeOpen)
	require.ErrorIs(t, err, common.ErrValidation)
	_, ok := m.Status("T1")
	require.True(t, ok)
}

func TestCloseRejectsDeclaredOutOfRange(t *testing.T) {
	m := newManager(newMemoryStore(), nil)
	ctx := context.Background()
	s, err := m.Open(ctx, "T1", mxn(math.MaxInt64/10), time.Time{})
	require.NoError(t, err)

	declared := money.FromMinorUnits(0, 4)
	_, err = m.Close(ctx, s.ID, &declared, time.Time{})
	require.ErrorIs(t, err, drawer.ErrInvalidBalance)
	require.ErrorIs(t, err, money.ErrOverflow)
	_, ok := m.Status("T1")
	require.True(t, ok)
}
