// Package account holds the account-scoped records (addresses, payment
// methods), the live-snapshot selection reconciler, and the single-default
// address reconciliation.
package account

import (
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/playtopia/storefront/internal/store"
)

// Address is a saved delivery address. The JSON field names are the wire
// contract with existing account data and must be preserved exactly.
type Address struct {
	ID         string `json:"-"`
	UserID     string `json:"userId"`
	Label      string `json:"label"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

// Key implements Keyed for selection.
func (a Address) Key() string { return a.ID }

// PaymentMethod is a saved (simulated) payment instrument: a label plus the
// masked card data. No real card validation is ever performed.
type PaymentMethod struct {
	ID     string `json:"-"`
	UserID string `json:"userId"`
	Label  string `json:"label"`
	Last4  string `json:"last4"`
	Expiry string `json:"expiry"`
}

// Key implements Keyed for selection.
func (m PaymentMethod) Key() string { return m.ID }

// DecodeAddress parses a stored document into an Address.
func DecodeAddress(doc store.Document) (Address, error) {
	var a Address
	if err := json.Unmarshal(doc.Fields, &a); err != nil {
		return Address{}, errors.Wrapf(err, "decode address %s", doc.ID)
	}
	a.ID = doc.ID
	a.UserID = doc.UserID
	return a, nil
}

// DecodeAddresses parses a snapshot of address documents.
func DecodeAddresses(docs []store.Document) ([]Address, error) {
	out := make([]Address, 0, len(docs))
	for _, doc := range docs {
		a, err := DecodeAddress(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// DecodePaymentMethod parses a stored document into a PaymentMethod.
func DecodePaymentMethod(doc store.Document) (PaymentMethod, error) {
	var m PaymentMethod
	if err := json.Unmarshal(doc.Fields, &m); err != nil {
		return PaymentMethod{}, errors.Wrapf(err, "decode payment method %s", doc.ID)
	}
	m.ID = doc.ID
	m.UserID = doc.UserID
	return m, nil
}

// DecodePaymentMethods parses a snapshot of payment method documents.
func DecodePaymentMethods(docs []store.Document) ([]PaymentMethod, error) {
	out := make([]PaymentMethod, 0, len(docs))
	for _, doc := range docs {
		m, err := DecodePaymentMethod(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All record types marshal without error; a failure here is a
		// programming bug.
		panic(err)
	}
	return b
}
