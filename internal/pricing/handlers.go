package pricing

import (
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/promo"
)

// Handler exposes read-only promotion resolution for the cashier screen.
type Handler struct {
	Engine   Engine
	Location *time.Location
	Now      func() time.Time
}

type candidatesView struct {
	Item     string            `json:"item"`
	At       string            `json:"at"`
	ByItem   []promo.Promotion `json:"item_promotions"`
	ByVendor []promo.Promotion `json:"provider_promotions"`
	Winner   *promo.Promotion  `json:"winner,omitempty"`
}

// ActivePromotions handles GET /api/v1/promotions/active?item=<ident>&at=YYYY-MM-DD.
func (h Handler) ActivePromotions(w http.ResponseWriter, r *http.Request) {
	if h.Engine.Catalog == nil || h.Engine.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	ident := strings.TrimSpace(r.URL.Query().Get("item"))
	if ident == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "item is required", nil)
		return
	}
	at := h.now()
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		parsed, err := time.ParseInLocation(promo.DateLayout, raw, h.location())
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "at must be YYYY-MM-DD", nil)
			return
		}
		at = parsed
	}
	ctx := r.Context()
	item, err := h.Engine.Catalog.GetItem(ctx, ident)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view := candidatesView{Item: item.Ident, At: at.Format(promo.DateLayout)}
	view.ByItem, err = h.Engine.Resolver.ResolveActive(ctx, promo.Target{Kind: promo.TargetItem, Ident: item.Ident}, at)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view.ByVendor, err = h.Engine.Resolver.ResolveActive(ctx, promo.Target{Kind: promo.TargetProvider, Ident: item.ProviderIdent}, at)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view.Winner, err = h.Engine.winningPromotion(ctx, item, at)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().In(h.location())
	}
	return time.Now().In(h.location())
}

func (h Handler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}
