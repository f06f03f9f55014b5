// Package checkout implements the checkout committer: the client-side
// transition "cart -> submitted order -> emptied cart". The order write is a
// single document append treated as atomic; the committed quantities leave
// the cart only after the write has been acknowledged.
package checkout

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/playtopia/storefront/internal/domain/account"
	"github.com/playtopia/storefront/internal/domain/cart"
	"github.com/playtopia/storefront/internal/store"
)

// State is the committer's position in Idle -> Submitting -> {Committed|Failed}.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Sentinel errors for submit preconditions.
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrNoAddress      = errors.New("no delivery address selected")
	ErrSubmitInFlight = errors.New("submission already in progress")
)

// Committer orchestrates order submission for one session's cart. A failed
// write leaves the cart untouched and the state in Failed; the next explicit
// Submit is the retry and moves through Submitting again. Nothing retries
// automatically.
type Committer struct {
	cart  *cart.Cart
	store store.Store

	// now is injectable for tests.
	now func() time.Time

	mu    sync.Mutex
	state State
}

// NewCommitter returns an idle committer over the given cart and store. The
// order id is assigned by the store on append.
func NewCommitter(c *cart.Cart, st store.Store) *Committer {
	return &Committer{
		cart:  c,
		store: st,
		now:   time.Now,
	}
}

// State returns the current state.
func (c *Committer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset returns a terminal committer to Idle. Resetting while Submitting is
// rejected; resetting an already idle committer is a no-op.
func (c *Committer) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	c.state = StateIdle
	return nil
}

// Submit validates the checkout preconditions, snapshots the cart by value,
// appends the order record, and deducts the committed quantities from the
// cart once the write is acknowledged.
//
// Precondition failures (empty cart, missing address, unknown payment method)
// are rejected before any write and leave the state unchanged. A write
// failure moves to Failed with the cart intact so the caller can surface a
// retryable error.
func (c *Committer) Submit(ctx context.Context, userID string, addr account.Address, method PaymentOption) (*Order, error) {
	if _, err := ParsePaymentOption(string(method)); err != nil {
		return nil, err
	}
	if addr.ID == "" {
		return nil, ErrNoAddress
	}

	// Snapshot by value before entering Submitting: later cart mutations must
	// not retroactively alter the submitted order.
	lines := c.cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	total := decimal.Zero
	items := make([]OrderItem, len(lines))
	for i, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items[i] = OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.UnitPrice.InexactFloat64(),
			Quantity:  line.Quantity,
		}
	}

	order := &Order{
		UserID:        userID,
		Items:         items,
		Total:         total.Round(2).InexactFloat64(),
		Address:       formatAddress(addr),
		PaymentMethod: string(method),
		CreatedAt:     c.now().UTC(),
	}

	fields, err := json.Marshal(order)
	if err != nil {
		c.setState(StateFailed)
		return nil, errors.Wrap(err, "encode order")
	}

	id, err := c.store.Append(ctx, store.CollectionOrders, userID, fields)
	if err != nil {
		c.setState(StateFailed)
		return nil, errors.Wrap(err, "append order")
	}
	order.ID = id

	// Ordering matters: deduct only after the write is acknowledged, so a
	// failure never loses the user's items. Consume takes exactly the
	// snapshotted quantities, so lines added while the write was in flight
	// stay in the cart.
	c.setState(StateCommitted)
	c.cart.Consume(lines)

	return order, nil
}

func (c *Committer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// formatAddress renders an address as the single display line stored on the
// order record.
func formatAddress(addr account.Address) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{addr.Street, addr.City, addr.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
