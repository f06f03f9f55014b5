package checkout

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-faster/errors"

	"github.com/playtopia/storefront/internal/store"
)

// PaymentOption is one of the fixed checkout payment choices. These are
// simulated selections, not real payment instruments; the string values are
// the wire contract with existing order records.
type PaymentOption string

const (
	PaymentCreditCard     PaymentOption = "Credit Card"
	PaymentPayPal         PaymentOption = "PayPal"
	PaymentCashOnDelivery PaymentOption = "Cash on Delivery"
)

// ErrInvalidPaymentMethod is returned when a submitted payment method is not
// one of the fixed options.
var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// ParsePaymentOption validates a wire payment method string.
func ParsePaymentOption(s string) (PaymentOption, error) {
	switch PaymentOption(s) {
	case PaymentCreditCard, PaymentPayPal, PaymentCashOnDelivery:
		return PaymentOption(s), nil
	}
	return "", errors.Wrapf(ErrInvalidPaymentMethod, "%q", s)
}

// OrderItem is one line of a committed order, snapshotted by value from the
// cart at submit time. JSON field names are the wire contract.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Order is an immutable record of a finalized checkout. It is created exactly
// once by the Committer and never mutated afterwards.
type Order struct {
	ID            string      `json:"-"`
	UserID        string      `json:"userId"`
	Items         []OrderItem `json:"items"`
	Total         float64     `json:"total"`
	Address       string      `json:"address"`
	PaymentMethod string      `json:"paymentMethod"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// DecodeOrder parses a stored order document.
func DecodeOrder(doc store.Document) (Order, error) {
	var o Order
	if err := json.Unmarshal(doc.Fields, &o); err != nil {
		return Order{}, errors.Wrapf(err, "decode order %s", doc.ID)
	}
	o.ID = doc.ID
	o.UserID = doc.UserID
	return o, nil
}

// DecodeOrders parses a snapshot of order documents, newest first.
func DecodeOrders(docs []store.Document) ([]Order, error) {
	out := make([]Order, 0, len(docs))
	for _, doc := range docs {
		o, err := DecodeOrder(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// History returns the user's committed orders, newest first. It is a pure
// projection: order records are read-only once written.
func History(ctx context.Context, st store.Store, userID string) ([]Order, error) {
	docs, err := st.List(ctx, store.CollectionOrders, store.ByUser(userID))
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return DecodeOrders(docs)
}
