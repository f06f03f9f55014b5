// Package cart implements the in-memory cart aggregate: one line per product,
// quantity aggregation, and an exact decimal subtotal. A cart belongs to a
// single client session, is never persisted, and sheds committed quantities
// only after an order write has been acknowledged.
package cart

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrLineNotFound is returned by SetQuantity when no line exists for the
// given product.
var ErrLineNotFound = errors.New("cart line not found")

// InvalidQuantityError indicates a quantity outside the accepted range.
// Add requires quantity >= 1; SetQuantity rejects quantities <= 0 rather
// than auto-removing the line, so callers that want removal must call
// Remove explicitly.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %s", e.Quantity, e.ProductID)
}

// Line is a single product+quantity pair in the cart.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Image     string
}

// Cart aggregates lines keyed by product ID. At most one line exists per
// product; adding the same product again increments its quantity ("add N
// more", not "set quantity").
//
// Mutations are serialized with a mutex: a session is logically
// single-threaded, but HTTP handlers may race on the same session. Observers
// run synchronously after each mutation, outside the lock, so dependent
// views (badge counts, totals) see a consistent cart without re-entrancy
// deadlocks.
type Cart struct {
	mu        sync.Mutex
	lines     map[string]Line
	observers []func()
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: make(map[string]Line)}
}

// OnChange registers an observer invoked after every successful mutation.
func (c *Cart) OnChange(fn func()) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Add inserts a new line or increments the quantity of an existing one.
// The line's quantity is how many units to add and must be >= 1.
func (c *Cart) Add(line Line) error {
	if line.Quantity < 1 {
		return &InvalidQuantityError{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	c.mu.Lock()
	if existing, ok := c.lines[line.ProductID]; ok {
		existing.Quantity += line.Quantity
		c.lines[line.ProductID] = existing
	} else {
		c.lines[line.ProductID] = line
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// Remove deletes the line for productID. Removing an absent product is a
// no-op, not an error.
func (c *Cart) Remove(productID string) {
	c.mu.Lock()
	_, ok := c.lines[productID]
	if ok {
		delete(c.lines, productID)
	}
	c.mu.Unlock()

	if ok {
		c.notify()
	}
}

// SetQuantity replaces the quantity of an existing line. Quantities <= 0 are
// rejected; use Remove to drop a line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}

	c.mu.Lock()
	line, ok := c.lines[productID]
	if !ok {
		c.mu.Unlock()
		return errors.Wrapf(ErrLineNotFound, "product %s", productID)
	}
	line.Quantity = quantity
	c.lines[productID] = line
	c.mu.Unlock()

	c.notify()
	return nil
}

// Consume deducts committed quantities from the cart after a confirmed order
// write. A line whose whole quantity was committed is dropped; quantity added
// while the write was in flight survives as the remainder. Absent products
// are skipped.
func (c *Cart) Consume(lines []Line) {
	c.mu.Lock()
	for _, committed := range lines {
		line, ok := c.lines[committed.ProductID]
		if !ok {
			continue
		}
		line.Quantity -= committed.Quantity
		if line.Quantity <= 0 {
			delete(c.lines, committed.ProductID)
		} else {
			c.lines[committed.ProductID] = line
		}
	}
	c.mu.Unlock()

	c.notify()
}

// Clear empties the cart. Called only when the owning session ends or the
// client explicitly empties its cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = make(map[string]Line)
	c.mu.Unlock()

	c.notify()
}

// Lines returns a copy of the current lines. Order is unspecified.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, line)
	}
	return out
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Subtotal is the exact decimal sum of unitPrice*quantity over all lines.
// Rounding to currency precision happens at presentation time only, never in
// the running sum.
func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := decimal.Zero
	for _, line := range c.lines {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum
}

func (c *Cart) notify() {
	c.mu.Lock()
	observers := make([]func(), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}
