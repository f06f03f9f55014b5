package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/playtopia/storefront/internal/domain/checkout"
)

type checkoutRequest struct {
	AddressID     string
	PaymentMethod string
}

func decodeCheckoutRequest(body []byte) (checkoutRequest, error) {
	var req checkoutRequest
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "addressId":
			v, err := d.Str()
			req.AddressID = v
			return err
		case "paymentMethod":
			v, err := d.Str()
			req.PaymentMethod = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, errBadRequest("invalid JSON body")
	}
	if req.PaymentMethod == "" {
		return req, errBadRequest("paymentMethod required")
	}
	return req, nil
}

// Checkout submits the session cart as an order. An explicit addressId
// selects a delivery address first; otherwise the session's current
// selection (auto-defaulted to the first saved address) is used. On success
// the cart is empty and the committed order is returned.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := decodeCheckoutRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.AddressID != "" {
		if err := s.Addresses.Select(req.AddressID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	addr, ok := s.Addresses.Selected()
	if !ok {
		h.writeError(w, r, checkout.ErrNoAddress)
		return
	}

	order, err := s.Committer.Submit(r.Context(), s.UserID, addr, checkout.PaymentOption(req.PaymentMethod))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeOrder(e, *order)
	writeJSON(w, http.StatusCreated, e)
}

func encodeOrder(e *jx.Encoder, o checkout.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("name")
		e.Str(item.Name)
		e.FieldStart("price")
		e.Float64(item.Price)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Float64(o.Total)
	e.FieldStart("address")
	e.Str(o.Address)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format(time.RFC3339))
	e.ObjEnd()
}
