package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/domain/account"
)

func decodePaymentMethodRequest(body []byte) (account.PaymentMethod, error) {
	var m account.PaymentMethod
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "label":
			m.Label, err = d.Str()
		case "last4":
			m.Last4, err = d.Str()
		case "expiry":
			m.Expiry, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return m, errBadRequest("invalid JSON body")
	}
	if m.Label == "" || m.Last4 == "" || m.Expiry == "" {
		return m, errBadRequest("label, last4 and expiry are required")
	}
	if len(m.Last4) != 4 {
		return m, errBadRequest("last4 must be exactly 4 digits")
	}
	for _, c := range m.Last4 {
		if c < '0' || c > '9' {
			return m, errBadRequest("last4 must be exactly 4 digits")
		}
	}
	return m, nil
}

// ListPaymentMethods serves the caller's saved payment methods.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity.CurrentUserID(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthorized)
		return
	}

	methods, err := h.accounts.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ArrStart()
	for _, m := range methods {
		encodePaymentMethod(e, m)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

// CreatePaymentMethod saves a new (simulated) payment method.
func (h *Handler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity.CurrentUserID(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthorized)
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := decodePaymentMethodRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m.UserID = userID

	saved, err := h.accounts.SavePaymentMethod(r.Context(), m)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodePaymentMethod(e, saved)
	writeJSON(w, http.StatusCreated, e)
}

// UpdatePaymentMethod edits the label, last4, or expiry of a saved method.
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := decodePaymentMethodRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.accounts.UpdatePaymentMethod(r.Context(), r.PathValue("id"), m.Label, m.Last4, m.Expiry); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePaymentMethod removes a saved method.
func (h *Handler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeletePaymentMethod(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSelectedPaymentMethod serves the session's currently selected saved
// method, reconciled against the live snapshot. 404 when nothing is selected,
// including after the chosen method was deleted from another session.
func (h *Handler) GetSelectedPaymentMethod(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	m, ok := s.Payments.Selected()
	if !ok {
		h.writeError(w, r, errNotFound("no payment method selected"))
		return
	}

	e := &jx.Encoder{}
	encodePaymentMethod(e, m)
	writeJSON(w, http.StatusOK, e)
}

// SelectPaymentMethod pins the session's saved-method selection. The id must
// exist in the latest snapshot.
func (h *Handler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := s.Payments.Select(r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodePaymentMethod(e *jx.Encoder, m account.PaymentMethod) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(m.ID)
	e.FieldStart("label")
	e.Str(m.Label)
	e.FieldStart("last4")
	e.Str(m.Last4)
	e.FieldStart("expiry")
	e.Str(m.Expiry)
	e.ObjEnd()
}
