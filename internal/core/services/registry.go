package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

// ErrUnknownSession is returned by Lookup for ids this process does not
// hold a manager for.
var ErrUnknownSession = errors.New("unknown session")

const defaultSessionTTL = 24 * time.Hour

// Registry maps opaque session ids to their session managers and mirrors
// every snapshot to the session store. One manager exists per logical user
// session; the bearer token only ever carries the id.
type Registry struct {
	provider  ports.IdentityProvider
	directory ports.RoleDirectory
	store     ports.SessionStore
	ttl       time.Duration

	mu       sync.RWMutex
	sessions map[string]*SessionManager
}

func NewRegistry(provider ports.IdentityProvider, directory ports.RoleDirectory, store ports.SessionStore) *Registry {
	return &Registry{
		provider:  provider,
		directory: directory,
		store:     store,
		ttl:       defaultSessionTTL,
		sessions:  make(map[string]*SessionManager),
	}
}

// Create constructs a fresh session manager and registers it.
func (r *Registry) Create(ctx context.Context) *SessionManager {
	m := NewSessionManager(r.provider, r.directory)

	r.mu.Lock()
	r.sessions[m.ID()] = m
	r.mu.Unlock()

	r.Persist(ctx, m)
	return m
}

// Lookup returns the manager for a session id.
func (r *Registry) Lookup(id string) (*SessionManager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return m, nil
}

// Snapshot returns the current session state for an id. It falls back to the
// store for sessions created by a previous process; those are readable but
// not operable.
func (r *Registry) Snapshot(ctx context.Context, id string) (domain.Session, error) {
	if m, err := r.Lookup(id); err == nil {
		return m.Current(), nil
	}
	return r.store.Get(ctx, id)
}

// Persist mirrors a manager's snapshot to the session store. Store failures
// are logged, not propagated: the in-process manager stays authoritative.
func (r *Registry) Persist(ctx context.Context, m *SessionManager) {
	if err := r.store.Save(ctx, m.Current(), r.ttl); err != nil {
		log.Printf("registry: failed to persist session %s: %v", m.ID(), err)
	}
}

// Run consumes the provider's state-change stream until ctx is done,
// routing each change to the sessions holding the affected principal. It
// covers provider-initiated transitions: a remote sign-out clears every
// session of that principal, a refresh re-resolves its role.
func (r *Registry) Run(ctx context.Context, notifier ports.StateNotifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-notifier.StateChanges():
			if !ok {
				return
			}
			r.route(ctx, change)
		}
	}
}

func (r *Registry) route(ctx context.Context, change ports.StateChange) {
	if change.PrincipalID == "" {
		return
	}

	r.mu.RLock()
	var affected []*SessionManager
	for _, m := range r.sessions {
		if m.holds(change.PrincipalID) {
			affected = append(affected, m)
		}
	}
	r.mu.RUnlock()

	for _, m := range affected {
		m.ApplyStateChange(ctx, change)
		r.Persist(ctx, m)
	}
}

// End logs the session out, evicts its manager, and drops the stored
// snapshot. Eviction happens regardless of revocation failure.
func (r *Registry) End(ctx context.Context, id string) error {
	m, err := r.Lookup(id)
	if err != nil {
		// Still clear any stored snapshot from a previous process.
		if delErr := r.store.Delete(ctx, id); delErr != nil {
			log.Printf("registry: failed to delete stored session %s: %v", id, delErr)
		}
		return err
	}

	_, revokeErr := m.Logout(ctx)
	if revokeErr != nil {
		log.Printf("registry: %v", revokeErr)
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	if err := r.store.Delete(ctx, id); err != nil {
		log.Printf("registry: failed to delete stored session %s: %v", id, err)
	}
	return nil
}
