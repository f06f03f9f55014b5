package account

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/playtopia/storefront/internal/store"
)

// Service owns the mutating operations on account records. Reads are live
// projections over the document store; the store is the owner of the data and
// other sessions for the same account may write concurrently.
type Service struct {
	store store.Store
}

// NewService returns a Service backed by the given document store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// ListAddresses returns the current address set for userID.
func (s *Service) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	docs, err := s.store.List(ctx, store.CollectionAddresses, store.ByUser(userID))
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return DecodeAddresses(docs)
}

// SaveAddress appends a new address. The account's first address becomes the
// default automatically.
func (s *Service) SaveAddress(ctx context.Context, addr Address) (Address, error) {
	existing, err := s.ListAddresses(ctx, addr.UserID)
	if err != nil {
		return Address{}, err
	}
	addr.IsDefault = len(existing) == 0

	id, err := s.store.Append(ctx, store.CollectionAddresses, addr.UserID, encode(addr))
	if err != nil {
		return Address{}, err
	}
	addr.ID = id
	return addr, nil
}

// DeleteAddress removes an address.
func (s *Service) DeleteAddress(ctx context.Context, id string) error {
	return s.store.Delete(ctx, store.CollectionAddresses, id)
}

// SetDefaultAddress makes addressID the single default for userID: every
// address in the set is written with isDefault = (id == addressID). The full
// batch is computed in memory before any write is issued, but the writes
// themselves are independent documents with no cross-document transaction. A
// concurrent writer can therefore produce a transient zero-or-two-defaults
// state; ReconcileDefaults restores the invariant on the next pass.
func (s *Service) SetDefaultAddress(ctx context.Context, userID, addressID string) error {
	addrs, err := s.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for _, a := range addrs {
		if a.ID == addressID {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(ErrStaleSelection, "address %s", addressID)
	}

	// Build the whole batch up front, then write. Skip documents already in
	// the desired state so the common case is a two-write batch.
	type patch struct {
		id        string
		isDefault bool
	}
	batch := make([]patch, 0, len(addrs))
	for _, a := range addrs {
		want := a.ID == addressID
		if a.IsDefault != want {
			batch = append(batch, patch{id: a.ID, isDefault: want})
		}
	}

	for _, p := range batch {
		if err := s.store.Update(ctx, store.CollectionAddresses, p.id, map[string]any{
			"isDefault": p.isDefault,
		}); err != nil {
			return errors.Wrapf(err, "set default %s", addressID)
		}
	}
	return nil
}

// ReconcileDefaults restores the at-most-one-default invariant for userID
// from the latest converged snapshot. With zero defaults the first address is
// promoted; with several, the first default wins and the rest are cleared.
// An empty address set needs no reconciliation.
func (s *Service) ReconcileDefaults(ctx context.Context, userID string) error {
	addrs, err := s.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return nil
	}

	keep := ""
	for _, a := range addrs {
		if a.IsDefault {
			keep = a.ID
			break
		}
	}
	if keep == "" {
		keep = addrs[0].ID
	}

	return s.SetDefaultAddress(ctx, userID, keep)
}

// ListPaymentMethods returns the current payment method set for userID.
func (s *Service) ListPaymentMethods(ctx context.Context, userID string) ([]PaymentMethod, error) {
	docs, err := s.store.List(ctx, store.CollectionPaymentMethods, store.ByUser(userID))
	if err != nil {
		return nil, errors.Wrap(err, "list payment methods")
	}
	return DecodePaymentMethods(docs)
}

// SavePaymentMethod appends a new payment method.
func (s *Service) SavePaymentMethod(ctx context.Context, m PaymentMethod) (PaymentMethod, error) {
	id, err := s.store.Append(ctx, store.CollectionPaymentMethods, m.UserID, encode(m))
	if err != nil {
		return PaymentMethod{}, err
	}
	m.ID = id
	return m, nil
}

// UpdatePaymentMethod patches the editable fields of an existing method.
func (s *Service) UpdatePaymentMethod(ctx context.Context, id, label, last4, expiry string) error {
	return s.store.Update(ctx, store.CollectionPaymentMethods, id, map[string]any{
		"label":  label,
		"last4":  last4,
		"expiry": expiry,
	})
}

// DeletePaymentMethod removes a payment method.
func (s *Service) DeletePaymentMethod(ctx context.Context, id string) error {
	return s.store.Delete(ctx, store.CollectionPaymentMethods, id)
}
