package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/playtopia/storefront/internal/store"
)

// notifyChannel is the pg_notify channel fired by the documents trigger. The
// payload is the collection name that changed.
const notifyChannel = "document_changes"

// refreshInterval bounds how stale a subscription can get if a notification
// is lost (connection blip, missed LISTEN window). Every subscription
// re-queries at least this often.
const refreshInterval = 30 * time.Second

var _ store.Store = (*DocumentStore)(nil)

type docSubscriber struct {
	collection string
	filter     store.Filter
	sub        *store.Subscription
}

// DocumentStore implements store.Store on a single JSONB documents table.
type DocumentStore struct {
	pool *pgxpool.Pool

	mu          sync.Mutex
	subscribers []*docSubscriber
}

// NewDocumentStore returns a DocumentStore using the given pool. Call Start
// to run the notification listener; without it, subscriptions still converge
// via the periodic refresh.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Append implements store.Store.
func (s *DocumentStore) Append(ctx context.Context, collection, userID string, fields []byte) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, user_id, doc) VALUES ($1, $2, $3) RETURNING id`,
		collection, userID, fields,
	).Scan(&id)
	if err != nil {
		return "", &store.WriteError{Collection: collection, Op: "append", Err: err}
	}
	return id, nil
}

// Update implements store.Store. The patch merges into the stored document
// server-side via jsonb concatenation, so the write is atomic per document.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return &store.WriteError{Collection: collection, Op: "update", Err: err}
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE documents SET doc = doc || $3 WHERE collection = $1 AND id = $2`,
		collection, id, patch,
	)
	if err != nil {
		return &store.WriteError{Collection: collection, Op: "update", Err: err}
	}
	return nil
}

// Delete implements store.Store. Deleting an absent document is a no-op.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return &store.WriteError{Collection: collection, Op: "delete", Err: err}
	}
	return nil
}

// List implements store.Store.
func (s *DocumentStore) List(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, doc FROM documents
		 WHERE collection = $1 AND ($2 = '' OR user_id = $2)
		 ORDER BY created_at`,
		collection, filter.UserID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Fields); err != nil {
			return nil, errors.Wrap(err, "scan document")
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DistinctUsers returns every user id with at least one document in the
// collection. Used by the boot-time default reconciliation sweep.
func (s *DocumentStore) DistinctUsers(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM documents WHERE collection = $1`,
		collection,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s users", collection)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan user id")
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Subscribe implements store.Store. The first snapshot is queried and
// published before Subscribe returns.
func (s *DocumentStore) Subscribe(ctx context.Context, collection string, filter store.Filter) (*store.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := store.NewSubscription(cancel)
	entry := &docSubscriber{collection: collection, filter: filter, sub: sub}

	docs, err := s.List(ctx, collection, filter)
	if err != nil {
		cancel()
		return nil, err
	}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, entry)
	s.mu.Unlock()

	sub.Publish(store.Snapshot{Documents: docs})

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.remove(entry)
				sub.End()
				return
			case <-ticker.C:
				s.deliver(ctx, entry)
			}
		}
	}()

	return sub, nil
}

// Start runs the LISTEN loop until ctx is cancelled, re-connecting with
// backoff after errors. Each notification republishes the affected
// collection to its subscribers.
func (s *DocumentStore) Start(ctx context.Context) {
	go func() {
		lg := zctx.From(ctx)
		backoff := time.Second
		for ctx.Err() == nil {
			if err := s.listen(ctx); err != nil && ctx.Err() == nil {
				lg.Warn("Document listener error", zap.Error(err), zap.Duration("backoff", backoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
		}
	}()
}

func (s *DocumentStore) listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire listen connection")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return errors.Wrap(err, "listen")
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		s.broadcast(ctx, notification.Payload)
	}
}

// broadcast re-queries and republishes every subscription on collection.
func (s *DocumentStore) broadcast(ctx context.Context, collection string) {
	s.mu.Lock()
	entries := make([]*docSubscriber, 0, len(s.subscribers))
	for _, e := range s.subscribers {
		if e.collection == collection {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.deliver(ctx, e)
	}
}

func (s *DocumentStore) deliver(ctx context.Context, e *docSubscriber) {
	docs, err := s.List(ctx, e.collection, e.filter)
	if err != nil {
		if ctx.Err() == nil {
			zctx.From(ctx).Warn("Subscription refresh failed",
				zap.String("collection", e.collection), zap.Error(err))
		}
		return
	}
	e.sub.Publish(store.Snapshot{Documents: docs})
}

func (s *DocumentStore) remove(entry *docSubscriber) {
	s.mu.Lock()
	for i, e := range s.subscribers {
		if e == entry {
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}
