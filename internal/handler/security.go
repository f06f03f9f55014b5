package handler

import (
	"net/http"

	"github.com/playtopia/storefront/internal/auth"
)

// requireAuth authenticates the request's api_key header and stores the
// resolved user id in the context for auth.ContextProvider consumers.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			// Also accept the conventional bearer form.
			if v := r.Header.Get("Authorization"); len(v) > 7 && v[:7] == "Bearer " {
				key = v[7:]
			}
		}
		if key == "" {
			h.writeError(w, r, auth.ErrUnauthorized)
			return
		}

		userID, err := h.authn.Authenticate(r.Context(), key)
		if err != nil {
			h.writeError(w, r, auth.ErrUnauthorized)
			return
		}

		next(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	}
}
