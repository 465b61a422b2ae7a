package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-caja/internal/common"
)

// Handler exposes catalog lookups for the cashier screen.
type Handler struct {
	Catalog Catalog
}

type itemView struct {
	Item
	Provider *Provider `json:"provider,omitempty"`
}

// Item handles GET /api/v1/catalog/items/{ident}.
func (h Handler) Item(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	ident := strings.TrimSpace(chi.URLParam(r, "ident"))
	if ident == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ident is required", nil)
		return
	}
	it, err := h.Catalog.GetItem(r.Context(), ident)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view := itemView{Item: it}
	if it.ProviderIdent != "" {
		p, err := h.Catalog.GetProvider(r.Context(), it.ProviderIdent)
		switch {
		case err == nil:
			view.Provider = &p
		case !errors.Is(err, ErrProviderNotFound):
			common.WriteError(w, err)
			return
		}
	}
	common.Data(w, http.StatusOK, view)
}
