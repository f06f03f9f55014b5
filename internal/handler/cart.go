package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/playtopia/storefront/internal/domain/cart"
	"github.com/playtopia/storefront/internal/session"
)

type cartItemRequest struct {
	ProductID string
	Quantity  int
}

func decodeCartItemRequest(body []byte) (cartItemRequest, error) {
	req := cartItemRequest{Quantity: 1}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			req.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			req.Quantity = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, errBadRequest("invalid JSON body")
	}
	if req.ProductID == "" {
		return req, errBadRequest("productId required")
	}
	return req, nil
}

func decodeQuantityRequest(body []byte) (int, error) {
	quantity := 0
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		quantity = v
		return err
	}); err != nil {
		return 0, errBadRequest("invalid JSON body")
	}
	return quantity, nil
}

// GetCart serves the session's cart with its presentation-rounded subtotal.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeCart(e, s)
	writeJSON(w, http.StatusOK, e)
}

// AddCartItem adds N more units of a product to the session cart. The
// product's current catalog entry supplies name and price.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
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
	req, err := decodeCartItemRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := s.Cart.Add(cart.Line{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  req.Quantity,
		Image:     p.Image,
	}); err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeCart(e, s)
	writeJSON(w, http.StatusOK, e)
}

// SetCartItemQuantity replaces a line's quantity. A quantity of zero is
// rejected; clients remove lines explicitly.
func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
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
	quantity, err := decodeQuantityRequest(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := s.Cart.SetQuantity(r.PathValue("id"), quantity); err != nil {
		h.writeError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeCart(e, s)
	writeJSON(w, http.StatusOK, e)
}

// RemoveCartItem removes a line. Removing an absent line succeeds.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	s.Cart.Remove(r.PathValue("id"))

	e := &jx.Encoder{}
	encodeCart(e, s)
	writeJSON(w, http.StatusOK, e)
}

// ClearCart empties the session cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	s.Cart.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func encodeCart(e *jx.Encoder, s *session.Session) {
	lines := s.Cart.Lines()

	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, line := range lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(line.ProductID)
		e.FieldStart("name")
		e.Str(line.Name)
		e.FieldStart("price")
		e.Float64(line.UnitPrice.InexactFloat64())
		e.FieldStart("quantity")
		e.Int(line.Quantity)
		e.FieldStart("image")
		e.Str(line.Image)
		e.ObjEnd()
	}
	e.ArrEnd()
	// Currency rounding happens here, at the presentation edge only.
	e.FieldStart("subtotal")
	e.Float64(s.Cart.Subtotal().Round(2).InexactFloat64())
	e.ObjEnd()
}
