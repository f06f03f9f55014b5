// Package memstore is an in-memory document store used by unit tests and dev
// mode. It implements the same snapshot-replace subscription semantics as the
// PostgreSQL store: every mutation republishes the full filtered collection
// to each live subscriber.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/playtopia/storefront/internal/store"
)

type subscriber struct {
	collection string
	filter     store.Filter
	sub        *store.Subscription
}

// Store holds documents per collection, guarded by a single mutex.
type Store struct {
	mu          sync.Mutex
	collections map[string][]store.Document
	subscribers []*subscriber

	// failWrites makes every write fail with the given error. Used by tests
	// to simulate store outages.
	failWrites error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{collections: make(map[string][]store.Document)}
}

// FailWrites makes subsequent writes fail with err; pass nil to heal.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.failWrites = err
	s.mu.Unlock()
}

// Append implements store.Store.
func (s *Store) Append(_ context.Context, collection, userID string, fields []byte) (string, error) {
	s.mu.Lock()
	if s.failWrites != nil {
		err := s.failWrites
		s.mu.Unlock()
		return "", &store.WriteError{Collection: collection, Op: "append", Err: err}
	}

	doc := store.Document{
		ID:     uuid.New().String(),
		UserID: userID,
		Fields: append([]byte(nil), fields...),
	}
	s.collections[collection] = append(s.collections[collection], doc)
	s.mu.Unlock()

	s.broadcast(collection)
	return doc.ID, nil
}

// Update implements store.Store. Unknown documents are ignored, matching the
// remote store's patch semantics.
func (s *Store) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	if s.failWrites != nil {
		err := s.failWrites
		s.mu.Unlock()
		return &store.WriteError{Collection: collection, Op: "update", Err: err}
	}

	docs := s.collections[collection]
	for i, doc := range docs {
		if doc.ID != id {
			continue
		}
		patched, err := patchDocument(doc.Fields, fields)
		if err != nil {
			s.mu.Unlock()
			return &store.WriteError{Collection: collection, Op: "update", Err: err}
		}
		docs[i].Fields = patched
		break
	}
	s.mu.Unlock()

	s.broadcast(collection)
	return nil
}

// Delete implements store.Store. Deleting an absent document is a no-op.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if s.failWrites != nil {
		err := s.failWrites
		s.mu.Unlock()
		return &store.WriteError{Collection: collection, Op: "delete", Err: err}
	}

	docs := s.collections[collection]
	for i, doc := range docs {
		if doc.ID == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.broadcast(collection)
	return nil
}

// List implements store.Store.
func (s *Store) List(_ context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filtered(collection, filter), nil
}

// Subscribe implements store.Store. The first snapshot is published
// immediately.
func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter) (*store.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := store.NewSubscription(cancel)

	entry := &subscriber{collection: collection, filter: filter, sub: sub}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, entry)
	snap := store.Snapshot{Documents: s.filtered(collection, filter)}
	s.mu.Unlock()

	sub.Publish(snap)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, e := range s.subscribers {
			if e == entry {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		sub.End()
	}()

	return sub, nil
}

// filtered returns a copy of the filtered collection. Caller holds s.mu.
func (s *Store) filtered(collection string, filter store.Filter) []store.Document {
	docs := s.collections[collection]
	out := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		if filter.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// broadcast republishes the full filtered collection to every subscriber of
// that collection. Latest-wins conflation in the subscription keeps slow
// consumers from seeing stale intermediates.
func (s *Store) broadcast(collection string) {
	s.mu.Lock()
	type delivery struct {
		sub  *store.Subscription
		snap store.Snapshot
	}
	deliveries := make([]delivery, 0, len(s.subscribers))
	for _, e := range s.subscribers {
		if e.collection != collection {
			continue
		}
		deliveries = append(deliveries, delivery{
			sub:  e.sub,
			snap: store.Snapshot{Documents: s.filtered(collection, e.filter)},
		})
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.sub.Publish(d.snap)
	}
}
