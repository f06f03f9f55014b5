package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/domain/account"
)

func decodeAddressRequest(body []byte) (account.Address, error) {
	var a account.Address
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "label":
			a.Label, err = d.Str()
		case "street":
			a.Street, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "postalCode":
			a.PostalCode, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return a, errBadRequest("invalid JSON body")
	}
	if a.Label == "" || a.Street == "" || a.City == "" || a.PostalCode == "" || a.Phone == "" {
		return a, errBadRequest("all address fields are required")
	}
	return a, nil
}

// ListAddresses serves the caller's saved addresses.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity.CurrentUserID(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthorized)
		return
	}

	addrs, err := h.accounts.ListAddresses(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ArrStart()
	for _, a := range addrs {
		encodeAddress(e, a)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

// CreateAddress saves a new address. The account's first address becomes the
// default automatically.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
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
	a, err := decodeAddressRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a.UserID = userID

	saved, err := h.accounts.SaveAddress(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeAddress(e, saved)
	writeJSON(w, http.StatusCreated, e)
}

// DeleteAddress removes a saved address.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAddress(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultAddress makes the address the account's single default.
func (h *Handler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity.CurrentUserID(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthorized)
		return
	}

	if err := h.accounts.SetDefaultAddress(r.Context(), userID, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeAddress(e *jx.Encoder, a account.Address) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID)
	e.FieldStart("label")
	e.Str(a.Label)
	e.FieldStart("street")
	e.Str(a.Street)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("postalCode")
	e.Str(a.PostalCode)
	e.FieldStart("phone")
	e.Str(a.Phone)
	e.FieldStart("isDefault")
	e.Bool(a.IsDefault)
	e.ObjEnd()
}
