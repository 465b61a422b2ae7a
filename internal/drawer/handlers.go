package drawer

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/ledger"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/payment"
	"github.com/noah-isme/backend-caja/internal/promo"
)

// Handler exposes drawer session endpoints. The terminal always comes from the
// authenticated request context.
type Handler struct {
	Manager  *Manager
	Validate *validator.Validate
	// Location resolves the optional business date of open and close.
	Location *time.Location
	Now      func() time.Time
}

type openRequest struct {
	Opening *money.Money `json:"opening" validate:"required"`
	At      string       `json:"at,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type closeRequest struct {
	Declared *money.Money `json:"declared,omitempty"`
	At       string       `json:"at,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type expenseRequest struct {
	Amount  *money.Money `json:"amount" validate:"required"`
	Concept string       `json:"concept" validate:"required,max=200"`
	Method  string       `json:"method,omitempty" validate:"omitempty,oneof=cash efectivo debit credit transfer"`
}

type statusView struct {
	Session Session      `json:"session"`
	Open    bool         `json:"open"`
	Balance *money.Money `json:"balance,omitempty"`
}

// Status handles GET /api/v1/caja/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}
	s, open := h.Manager.Status(terminal)
	view := statusView{Session: s, Open: open}
	if open {
		bal, err := h.Manager.RunningBalance(r.Context(), s.ID)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		view.Balance = &bal
	}
	common.Data(w, http.StatusOK, view)
}

// Open handles POST /api/v1/caja/open.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}
	var req openRequest
	if err := common.DecodeJSON(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	at, err := h.businessTime(req.At)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	s, err := h.Manager.Open(r.Context(), terminal, *req.Opening, at)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, s)
}

// Close handles POST /api/v1/caja/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := common.DecodeJSON(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	s, open := h.Manager.Status(terminal)
	if !open {
		common.WriteError(w, ErrSessionNotOpen)
		return
	}
	at, err := h.businessTime(req.At)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	report, err := h.Manager.Close(r.Context(), s.ID, req.Declared, at)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, report)
}

// Expense handles POST /api/v1/caja/expenses. The amount is sent positive and
// recorded as an outflow.
func (h *Handler) Expense(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := common.DecodeJSON(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if !req.Amount.IsPositive() {
		common.WriteError(w, &common.FieldErrors{Fields: map[string]string{"amount": "must be positive"}})
		return
	}
	method := payment.MethodCash
	if req.Method != "" {
		m, err := payment.ParseMethod(req.Method)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		method = m
	}
	s, open := h.Manager.Status(terminal)
	if !open {
		common.WriteError(w, ErrSessionNotOpen)
		return
	}
	seller, _ := common.UserID(r.Context())
	ack, err := h.Manager.RecordMovement(r.Context(), s.ID, ledger.Entry{
		Kind:    ledger.KindExpense,
		Amount:  req.Amount.Neg(),
		Method:  method,
		Concept: req.Concept,
		Seller:  seller,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, ack)
}

// Balance handles GET /api/v1/caja/sessions/{id}/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return
	}
	s, err := h.Manager.Session(id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if terminal, ok := common.TerminalID(r.Context()); ok && terminal != s.Terminal {
		common.WriteError(w, ErrSessionNotFound)
		return
	}
	totals, movements, err := h.Manager.Statement(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	bal := totals.Balance
	common.Data(w, http.StatusOK, map[string]any{
		"session":   s,
		"balance":   bal,
		"movements": movements,
	})
}

func (h *Handler) terminal(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Manager == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "drawer manager not configured", nil)
		return "", false
	}
	terminal, ok := common.TerminalID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "terminal token required", nil)
		return "", false
	}
	return terminal, true
}

// businessTime maps an optional YYYY-MM-DD date to that day at the current
// wall-clock time. An empty date yields the zero time, which the manager reads
// as now.
func (h *Handler) businessTime(date string) (time.Time, error) {
	if date == "" {
		return time.Time{}, nil
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(promo.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, &common.FieldErrors{Fields: map[string]string{"at": "must be YYYY-MM-DD"}}
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	now = now.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), 0, loc), nil
}
