// Package auth defines the authentication capability the core consumes. The
// provider is always injected; no component binds to process-wide auth state.
package auth

import (
	"context"
	"sync"
)

// Provider supplies the current authenticated identity.
type Provider interface {
	// CurrentUserID returns the signed-in user id, or false when no user is
	// signed in.
	CurrentUserID(ctx context.Context) (string, bool)
}

// Notifier extends Provider with sign-in/out transition callbacks.
type Notifier interface {
	Provider
	// OnChange registers fn, invoked with the new user id (or "" on sign-out)
	// on every identity transition.
	OnChange(fn func(userID string))
}

type userKey struct{}

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext extracts the authenticated user id set by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// ContextProvider resolves identity from the request context, where the HTTP
// authentication middleware stored it.
type ContextProvider struct{}

var _ Provider = ContextProvider{}

// CurrentUserID implements Provider.
func (ContextProvider) CurrentUserID(ctx context.Context) (string, bool) {
	return UserFromContext(ctx)
}

// StaticProvider holds a switchable identity. Used in dev mode and tests to
// model sign-in/out transitions without a real auth service.
type StaticProvider struct {
	mu        sync.Mutex
	userID    string
	callbacks []func(string)
}

var _ Notifier = (*StaticProvider)(nil)

// NewStaticProvider returns a provider signed in as userID; pass "" for a
// signed-out provider.
func NewStaticProvider(userID string) *StaticProvider {
	return &StaticProvider{userID: userID}
}

// CurrentUserID implements Provider.
func (p *StaticProvider) CurrentUserID(context.Context) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID, p.userID != ""
}

// OnChange implements Notifier.
func (p *StaticProvider) OnChange(fn func(userID string)) {
	p.mu.Lock()
	p.callbacks = append(p.callbacks, fn)
	p.mu.Unlock()
}

// SignIn switches the identity and notifies callbacks.
func (p *StaticProvider) SignIn(userID string) {
	p.transition(userID)
}

// SignOut clears the identity and notifies callbacks.
func (p *StaticProvider) SignOut() {
	p.transition("")
}

func (p *StaticProvider) transition(userID string) {
	p.mu.Lock()
	if p.userID == userID {
		p.mu.Unlock()
		return
	}
	p.userID = userID
	callbacks := make([]func(string), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(userID)
	}
}
