package report

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/promo"
)

// Handler exposes the caja report.
type Handler struct {
	Svc *Service
}

// Caja handles GET /api/v1/reports/caja?from_date=YYYY-MM-DD&to_date=YYYY-MM-DD[&download=1].
func (h *Handler) Caja(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "report service not configured", nil)
		return
	}
	q := r.URL.Query()
	loc := h.Svc.location()
	from, err := time.ParseInLocation(promo.DateLayout, strings.TrimSpace(q.Get("from_date")), loc)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from_date must be YYYY-MM-DD", nil)
		return
	}
	to, err := time.ParseInLocation(promo.DateLayout, strings.TrimSpace(q.Get("to_date")), loc)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "to_date must be YYYY-MM-DD", nil)
		return
	}
	rep, err := h.Svc.Caja(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if dl := q.Get("download"); dl == "1" || strings.EqualFold(dl, "true") {
		writeCSV(w, rep)
		return
	}
	common.Data(w, http.StatusOK, rep)
}

var csvHeader = []string{
	"kind", "id", "at", "terminal", "seller", "method", "concept",
	"subtotal", "line_discounts", "general_discount", "surcharges",
	"net_total_adjustments", "total", "tendered", "change", "lines",
}

func writeCSV(w http.ResponseWriter, rep Report) {
	common.Attachment(w, "text/csv", "caja_"+rep.From+"_"+rep.To+".csv")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, s := range rep.Sales {
		_ = cw.Write([]string{
			"sale",
			s.ReceiptID.String(),
			s.IssuedAt.Format(time.RFC3339),
			s.Terminal,
			s.Seller,
			string(s.Method),
			s.Concept,
			s.Subtotal.String(),
			s.LineDiscounts.String(),
			s.GeneralDiscount.String(),
			s.Surcharges.String(),
			s.NetTotalAdjustments.String(),
			s.Total.String(),
			s.Tendered.String(),
			s.Change.String(),
			strconv.Itoa(len(s.Lines)),
		})
	}
	for _, e := range rep.Expenses {
		_ = cw.Write([]string{
			string(e.Kind),
			e.MovementID.String(),
			e.At.Format(time.RFC3339),
			"",
			e.Seller,
			string(e.Method),
			e.Concept,
			"", "", "", "", "",
			e.Amount.String(),
			"", "", "",
		})
	}
	cw.Flush()
}
