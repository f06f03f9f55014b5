package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/store"
)

// DefaultTTL is how long an idle session is kept before eviction.
const DefaultTTL = 30 * time.Minute

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager keys sessions by client-provided session id. Sessions are bound to
// the authenticated user: reusing a session id under a different identity
// replaces the session (the previous cart is destroyed, never carried over).
type Manager struct {
	store store.Store
	ttl   time.Duration

	// baseCtx parents every session's subscription lifetime.
	baseCtx context.Context

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager returns a Manager whose sessions subscribe through st. ctx
// bounds the lifetime of all sessions.
func NewManager(ctx context.Context, st store.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:   st,
		ttl:     ttl,
		baseCtx: ctx,
		entries: make(map[string]*entry),
	}
}

// Get returns the session for id, creating it when absent. The session's
// idle timer is refreshed on every call.
func (m *Manager) Get(id, userID string) (*Session, error) {
	m.mu.Lock()

	if e, ok := m.entries[id]; ok {
		if e.session.UserID == userID {
			e.lastSeen = time.Now()
			s := e.session
			m.mu.Unlock()
			return s, nil
		}
		// Same session id, different identity: drop the old session.
		delete(m.entries, id)
		m.mu.Unlock()
		e.session.Close()
		m.mu.Lock()
	}

	s, err := newSession(m.baseCtx, m.store, id, userID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.entries[id] = &entry{session: s, lastSeen: time.Now()}
	m.mu.Unlock()
	return s, nil
}

// BindAuth subscribes to identity transitions: whenever the signed-in user
// changes or signs out, every session of the previous user is destroyed.
func (m *Manager) BindAuth(n auth.Notifier) {
	var mu sync.Mutex
	prev, _ := n.CurrentUserID(m.baseCtx)

	n.OnChange(func(userID string) {
		mu.Lock()
		old := prev
		prev = userID
		mu.Unlock()

		if old != "" && old != userID {
			m.DropUser(old)
		}
	})
}

// Drop removes and closes the session for id, if present.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	if ok {
		e.session.Close()
	}
}

// DropUser closes every session belonging to userID. Wired to auth sign-out
// transitions.
func (m *Manager) DropUser(userID string) {
	m.mu.Lock()
	var dropped []*Session
	for id, e := range m.entries {
		if e.session.UserID == userID {
			delete(m.entries, id)
			dropped = append(dropped, e.session)
		}
	}
	m.mu.Unlock()

	for _, s := range dropped {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartCleanup evicts idle sessions every interval until ctx is cancelled.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.evictIdle(time.Now()); n > 0 {
					zctx.From(ctx).Debug("Evicted idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

func (m *Manager) evictIdle(now time.Time) int {
	m.mu.Lock()
	var idle []*Session
	for id, e := range m.entries {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.entries, id)
			idle = append(idle, e.session)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}
