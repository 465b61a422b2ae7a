package drawer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/obs"
)

// Config wires a Manager.
type Config struct {
	Ledger  *ledger.Ledger
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Events  Emitter
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Manager owns drawer sessions. A terminal has at most one open session and
// every transition on a terminal runs under that terminal's lock.
type Manager struct {
	ledger  *ledger.Ledger
	store   Store
	locker  Locker
	lockTTL time.Duration
	events  Emitter
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	sessions  map[uuid.UUID]Session
	open      map[string]uuid.UUID
	terminals map[string]*sync.Mutex
}

// NewManager builds a manager. A nil ledger gets an in-memory one.
func NewManager(cfg Config) *Manager {
	l := cfg.Ledger
	if l == nil {
		l = ledger.New(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Manager{
		ledger:    l,
		store:     cfg.Store,
		locker:    cfg.Locker,
		lockTTL:   ttl,
		events:    cfg.Events,
		logger:    cfg.Logger,
		now:       now,
		sessions:  make(map[uuid.UUID]Session),
		open:      make(map[string]uuid.UUID),
		terminals: make(map[string]*sync.Mutex),
	}
}

// Open starts a session for terminal. A zero at means now.
func (m *Manager) Open(ctx context.Context, terminal string, opening money.Money, at time.Time) (Session, error) {
	terminal = strings.TrimSpace(terminal)
	if terminal == "" {
		return Session{}, ErrTerminalRequired
	}
	if opening.IsNegative() {
		return Session{}, ErrInvalidBalance
	}
	if at.IsZero() {
		at = m.now()
	}
	var opened Session
	err := m.withTerminal(ctx, terminal, func(ctx context.Context) error {
		if _, ok := m.openSessionID(terminal); ok {
			return ErrAlreadyOpen
		}
		s := Session{ID: uuid.New(), Terminal: terminal, State: StateOpen, Opening: opening, OpenedAt: at}
		if m.store != nil {
			if err := m.store.SaveSession(ctx, s); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
		}
		if err := m.ledger.Begin(s.ID, opening); err != nil {
			return err
		}
		m.mu.Lock()
		m.sessions[s.ID] = s
		m.open[terminal] = s.ID
		m.mu.Unlock()
		opened = s
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	obs.RecordDrawerTransition("open")
	m.logger.Info().Str("terminal", terminal).Str("session_id", opened.ID.String()).Str("opening", opening.String()).Msg("drawer opened")
	m.emit(ctx, events.TopicDrawerOpened, opened.ID, opened)
	return opened, nil
}

// RecordMovement appends entry to an open session.
func (m *Manager) RecordMovement(ctx context.Context, sessionID uuid.UUID, entry ledger.Entry) (Ack, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return Ack{}, err
	}
	if entry.At.IsZero() {
		entry.At = m.now()
	}
	var (
		ack Ack
		mv  ledger.Movement
	)
	err = m.withTerminal(ctx, s.Terminal, func(ctx context.Context) error {
		current, err := m.Session(sessionID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			return ErrSessionNotOpen
		}
		mv, err = m.ledger.Append(ctx, sessionID, entry)
		if err != nil {
			return err
		}
		bal, err := m.ledger.RunningBalance(sessionID)
		if err != nil {
			return err
		}
		ack = Ack{MovementID: mv.ID, Seq: mv.Seq, Balance: bal}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	if mv.Kind == ledger.KindExpense {
		m.emit(ctx, events.TopicExpenseRecorded, sessionID, mv)
	}
	return ack, nil
}

// Close ends an open session. A declared balance that differs from the
// expected one is reported on the closing report and never blocks the close.
func (m *Manager) Close(ctx context.Context, sessionID uuid.UUID, declared *money.Money, at time.Time) (ClosingReport, error) {
	if declared != nil && declared.IsNegative() {
		return ClosingReport{}, ErrInvalidBalance
	}
	s, err := m.Session(sessionID)
	if err != nil {
		return ClosingReport{}, err
	}
	if at.IsZero() {
		at = m.now()
	}
	if at.Before(s.OpenedAt) {
		return ClosingReport{}, ErrCloseBeforeOpen
	}
	var report ClosingReport
	err = m.withTerminal(ctx, s.Terminal, func(ctx context.Context) error {
		current, err := m.Session(sessionID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			return ErrSessionNotOpen
		}
		totals, err := m.ledger.Totals(sessionID)
		if err != nil {
			return err
		}
		expected := totals.Balance
		closed := current
		closed.State = StateClosed
		closedAt := at
		closed.ClosedAt = &closedAt
		closed.Closing = &expected
		if declared != nil {
			d := *declared
			closed.Declared = &d
			if closed.Discrepancy, err = discrepancyOf(expected, d); err != nil {
				return err
			}
		}
		if m.store != nil {
			if err := m.store.SaveSession(ctx, closed); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
		}
		m.mu.Lock()
		m.sessions[sessionID] = closed
		delete(m.open, closed.Terminal)
		m.mu.Unlock()
		if m.store != nil {
			m.ledger.Forget(sessionID)
		}
		report = ClosingReport{
			Session:     closed,
			Totals:      totals,
			Expected:    expected,
			Declared:    closed.Declared,
			Discrepancy: closed.Discrepancy,
		}
		return nil
	})
	if err != nil {
		return ClosingReport{}, err
	}
	obs.RecordDrawerTransition("close")
	log := m.logger.Info().Str("terminal", report.Session.Terminal).Str("session_id", sessionID.String()).Str("expected", report.Expected.String())
	if report.Discrepancy != nil {
		obs.ObserveDiscrepancy(report.Discrepancy.Difference.Minor())
		log = log.Str("difference", report.Discrepancy.Difference.String()).Str("direction", string(report.Discrepancy.Direction))
	}
	log.Msg("drawer closed")
	m.emit(ctx, events.TopicDrawerClosed, sessionID, report)
	if report.Discrepancy != nil {
		m.emit(ctx, events.TopicDrawerDiscrepancy, sessionID, report.Discrepancy)
	}
	return report, nil
}

// Status returns the open session of terminal, if any.
func (m *Manager) Status(terminal string) (Session, bool) {
	terminal = strings.TrimSpace(terminal)
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.open[terminal]
	if !ok {
		return Session{Terminal: terminal, State: StateClosed}, false
	}
	return m.sessions[id], true
}

// Session returns a known session by id.
func (m *Manager) Session(id uuid.UUID) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// RunningBalance is the cash the drawer of session id should hold.
func (m *Manager) RunningBalance(ctx context.Context, id uuid.UUID) (money.Money, error) {
	totals, _, err := m.Statement(ctx, id)
	if err != nil {
		return money.Money{}, err
	}
	return totals.Balance, nil
}

// Movements lists the movements of a known session.
func (m *Manager) Movements(ctx context.Context, id uuid.UUID) ([]ledger.Movement, error) {
	_, rows, err := m.Statement(ctx, id)
	return rows, err
}

// Statement returns the totals and movements of a known session. Closed
// sessions whose book was released are read back from the store.
func (m *Manager) Statement(ctx context.Context, id uuid.UUID) (ledger.Totals, []ledger.Movement, error) {
	s, err := m.Session(id)
	if err != nil {
		return ledger.Totals{}, nil, err
	}
	rows, err := m.ledger.Movements(id)
	if errors.Is(err, ledger.ErrUnknownSession) && !s.IsOpen() && m.store != nil {
		rows, err = m.store.ListMovements(ctx, id)
		if err != nil {
			return ledger.Totals{}, nil, fmt.Errorf("list movements: %w", err)
		}
	}
	if err != nil {
		return ledger.Totals{}, nil, err
	}
	totals, err := ledger.Summarize(s.Opening, rows)
	if err != nil {
		return ledger.Totals{}, nil, err
	}
	return totals, rows, nil
}

// Restore reloads open sessions and their movements from the store.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	sessions, err := m.store.ListOpenSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open sessions: %w", err)
	}
	for _, s := range sessions {
		rows, err := m.store.ListMovements(ctx, s.ID)
		if err != nil {
			return 0, fmt.Errorf("list movements for %s: %w", s.ID, err)
		}
		m.ledger.Restore(s.ID, s.Opening, rows)
		m.mu.Lock()
		m.sessions[s.ID] = s
		if s.IsOpen() {
			m.open[s.Terminal] = s.ID
		}
		m.mu.Unlock()
	}
	if len(sessions) > 0 {
		m.logger.Info().Int("sessions", len(sessions)).Msg("drawer sessions restored")
	}
	return len(sessions), nil
}

// OpenCount reports how many sessions are currently open.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Manager) openSessionID(terminal string) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.open[terminal]
	return id, ok
}

func (m *Manager) terminalMutex(terminal string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.terminals[terminal]
	if !ok {
		mu = &sync.Mutex{}
		m.terminals[terminal] = mu
	}
	return mu
}

func (m *Manager) withTerminal(ctx context.Context, terminal string, fn func(context.Context) error) error {
	mu := m.terminalMutex(terminal)
	mu.Lock()
	defer mu.Unlock()
	if m.locker == nil {
		return fn(ctx)
	}
	return m.locker.WithLock(ctx, "drawer:"+terminal, m.lockTTL, fn)
}

func (m *Manager) emit(ctx context.Context, topic string, aggregate uuid.UUID, payload any) {
	if m.events == nil {
		return
	}
	if _, err := m.events.Emit(ctx, topic, aggregate, payload); err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Str("aggregate_id", aggregate.String()).Msg("emit event")
	}
}
