// Package store defines the document store collaborator the storefront core
// is written against: append/update/delete writes plus live snapshot
// subscriptions. Implementations live in memstore (in-memory, for tests and
// dev mode) and storage/postgres (JSONB documents with LISTEN/NOTIFY).
package store

import (
	"context"
	"fmt"
	"sync"
)

// Collection names. The field names inside documents are the de facto wire
// contract with existing account data and must not change.
const (
	CollectionAddresses      = "addresses"
	CollectionPaymentMethods = "paymentMethods"
	CollectionOrders         = "orders"
)

// Document is a stored record: an opaque JSON object plus its identity.
// Fields holds the decoded object including the "userId" ownership field.
type Document struct {
	ID     string
	UserID string
	Fields []byte
}

// Filter restricts a subscription or query to documents owned by one user.
// The zero Filter matches every document in the collection.
type Filter struct {
	UserID string
}

// ByUser returns a filter matching documents owned by userID.
func ByUser(userID string) Filter {
	return Filter{UserID: userID}
}

// Matches reports whether doc passes the filter.
func (f Filter) Matches(doc Document) bool {
	return f.UserID == "" || f.UserID == doc.UserID
}

// WriteError wraps a failed append/update/delete. Writes are never retried
// automatically; callers surface the failure as a recoverable condition and
// leave their own state untouched so an explicit retry is safe.
type WriteError struct {
	Collection string
	Op         string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Snapshot is one delivered state of a live subscription. Each snapshot fully
// replaces the prior projection; there is no merge logic.
type Snapshot struct {
	Documents []Document
}

// Store is the remote persistence collaborator. The client never assumes it
// is the sole writer: another session for the same account can mutate the
// same collections concurrently.
type Store interface {
	// Append writes a new document and returns its id. The document is
	// constructed fully in memory before the call; a failed append leaves
	// nothing partially written.
	Append(ctx context.Context, collection string, userID string, fields []byte) (string, error)

	// Update patches named fields of an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// List returns the current filtered contents of a collection.
	List(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Subscribe opens a live snapshot stream for the filtered collection.
	// The first snapshot reflects the current contents; subsequent snapshots
	// are delivered on every change until the subscription is closed or ctx
	// is cancelled.
	Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error)
}

// Subscription is a cancellable snapshot stream. Snapshots are conflated: a
// slow consumer observes the latest state, never a backlog of stale
// intermediates.
type Subscription struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	err    error
}

// NewSubscription builds a subscription around a capacity-1 delivery channel
// so Publish can conflate.
func NewSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{
		ch:     make(chan Snapshot, 1),
		cancel: cancel,
	}
}

// Snapshots returns the delivery channel. It is closed when the subscription
// ends; check Err afterwards for a non-cancellation cause.
func (s *Subscription) Snapshots() <-chan Snapshot { return s.ch }

// Publish delivers a snapshot, replacing any undelivered previous one.
// Publishing to an ended subscription is a no-op.
func (s *Subscription) Publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		// Drop the undelivered snapshot and replace it.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}

// Fail records the terminal error and closes the stream.
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
}

// End closes the stream without error. Safe to call multiple times.
func (s *Subscription) End() {
	s.Fail(nil)
}

// Err returns the terminal error, if any, once Snapshots is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
