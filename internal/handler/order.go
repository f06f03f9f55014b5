package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/domain/checkout"
)

// ListOrders serves the caller's order history, newest first. Orders are
// immutable once written; this is a pure projection.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity.CurrentUserID(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthorized)
		return
	}

	orders, err := checkout.History(r.Context(), h.store, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(e, o)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}
