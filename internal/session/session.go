// Package session owns the per-client state: the ephemeral cart, the
// address/payment selection reconcilers fed by live store subscriptions, and
// the checkout committer. A session is created empty, lives in memory only,
// and is destroyed on expiry or sign-out.
package session

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/playtopia/storefront/internal/domain/account"
	"github.com/playtopia/storefront/internal/domain/cart"
	"github.com/playtopia/storefront/internal/domain/checkout"
	"github.com/playtopia/storefront/internal/store"
)

// Session is one client's in-memory storefront state.
type Session struct {
	ID     string
	UserID string

	Cart      *cart.Cart
	Addresses *account.Selector[account.Address]
	Payments  *account.Selector[account.PaymentMethod]
	Committer *checkout.Committer

	cancel context.CancelFunc
}

// newSession builds a session and starts the subscription pumps that keep the
// selectors reconciled against the account's live address and payment method
// snapshots.
func newSession(ctx context.Context, st store.Store, id, userID string) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		ID:        id,
		UserID:    userID,
		Cart:      cart.New(),
		Addresses: account.NewSelector[account.Address](),
		Payments:  account.NewSelector[account.PaymentMethod](),
		cancel:    cancel,
	}
	s.Committer = checkout.NewCommitter(s.Cart, st)

	addrSub, err := st.Subscribe(ctx, store.CollectionAddresses, store.ByUser(userID))
	if err != nil {
		cancel()
		return nil, err
	}
	paySub, err := st.Subscribe(ctx, store.CollectionPaymentMethods, store.ByUser(userID))
	if err != nil {
		addrSub.Close()
		cancel()
		return nil, err
	}

	go s.pumpAddresses(ctx, addrSub)
	go s.pumpPayments(ctx, paySub)

	return s, nil
}

// Close stops the subscription pumps and destroys the cart.
func (s *Session) Close() {
	s.cancel()
	s.Cart.Clear()
}

func (s *Session) pumpAddresses(ctx context.Context, sub *store.Subscription) {
	defer sub.Close()
	for snap := range sub.Snapshots() {
		addrs, err := account.DecodeAddresses(snap.Documents)
		if err != nil {
			zctx.From(ctx).Warn("Bad address snapshot",
				zap.String("session", s.ID), zap.Error(err))
			continue
		}
		s.Addresses.Apply(addrs)
	}
}

func (s *Session) pumpPayments(ctx context.Context, sub *store.Subscription) {
	defer sub.Close()
	for snap := range sub.Snapshots() {
		methods, err := account.DecodePaymentMethods(snap.Documents)
		if err != nil {
			zctx.From(ctx).Warn("Bad payment method snapshot",
				zap.String("session", s.ID), zap.Error(err))
			continue
		}
		s.Payments.Apply(methods)
	}
}
