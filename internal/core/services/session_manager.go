package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

// SessionManager owns the authentication state machine for one logical user
// session:
//
//	Unauthenticated -> Resolving            (sign-in attempt)
//	Resolving       -> Authenticated        (existing role record)
//	Resolving       -> PendingRoleSelection (federated principal, no record)
//	Pending         -> Authenticated        (CompleteRegistration)
//	Pending         -> Unauthenticated      (AbandonRegistration)
//	any             -> Unauthenticated      (Logout)
//
// The initial state is Resolving until the provider's state stream has fired
// at least once, which covers cold start. Every transition to Resolving bumps
// a generation counter; a remote result is applied only if the generation it
// started under is still current, so a sign-out races an in-flight role
// lookup safely (the stale result is discarded, never applied).
type SessionManager struct {
	id        string
	provider  ports.IdentityProvider
	directory ports.RoleDirectory
	now       func() time.Time

	mu         sync.Mutex
	state      domain.SessionState
	principal  *domain.Principal
	role       *domain.Role
	pending    *domain.Principal
	loading    bool
	generation uint64
}

func NewSessionManager(provider ports.IdentityProvider, directory ports.RoleDirectory) *SessionManager {
	return &SessionManager{
		id:        uuid.NewString(),
		provider:  provider,
		directory: directory,
		now:       time.Now,
		state:     domain.StateResolving,
		loading:   true,
	}
}

// ID returns the opaque session identifier.
func (m *SessionManager) ID() string { return m.id }

// Current returns a read-only snapshot of the session.
func (m *SessionManager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *SessionManager) snapshotLocked() domain.Session {
	s := domain.Session{
		ID:         m.id,
		State:      m.state,
		Loading:    m.loading,
		Generation: m.generation,
	}
	if m.principal != nil {
		p := *m.principal
		s.Principal = &p
	}
	if m.role != nil {
		r := *m.role
		s.Role = &r
	}
	if m.pending != nil {
		p := *m.pending
		s.Pending = &p
	}
	return s
}

// beginResolving moves the session into Resolving and returns the generation
// this attempt runs under.
func (m *SessionManager) beginResolving() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.state = domain.StateResolving
	m.loading = true
	return m.generation
}

// settle applies fn only if gen is still the current generation. It returns
// false when the result is stale (a logout or newer attempt intervened).
func (m *SessionManager) settle(gen uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false
	}
	fn()
	return true
}

// Login authenticates with email and password and resolves the principal's
// role. A principal without a role record is signed back out and reported as
// an authentication failure: password accounts are provisioned through the
// directory first, so a missing record means the account is not registered.
func (m *SessionManager) Login(ctx context.Context, email, password string) (domain.Session, error) {
	gen := m.beginResolving()

	principal, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.settle(gen, m.clearLocked)
		return m.Current(), fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	rec, err := m.directory.Get(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			m.revokeQuietly(ctx, principal.ID)
			m.settle(gen, m.clearLocked)
			return m.Current(), fmt.Errorf("%w: principal not registered", ErrAuthenticationFailed)
		}
		m.settle(gen, m.clearLocked)
		return m.Current(), fmt.Errorf("%w: %v", ErrRoleResolutionFailed, err)
	}

	m.touchLastLogin(ctx, principal.ID)

	if !m.settle(gen, func() {
		m.principal = &principal
		role := rec.Role
		m.role = &role
		m.pending = nil
		m.loading = false
		m.state = domain.StateAuthenticated
	}) {
		// Session moved on while we were resolving; don't leave the
		// provider session dangling.
		m.revokeQuietly(ctx, principal.ID)
		return m.Current(), fmt.Errorf("%w: session superseded", ErrAuthenticationFailed)
	}

	return m.Current(), nil
}

// FederatedSignIn completes a federated (Google) sign-in. An existing
// principal gets its last-login touched and becomes authenticated; a new
// principal is held pending explicit role selection and nothing is written
// to the directory until registration completes.
func (m *SessionManager) FederatedSignIn(ctx context.Context, assertion ports.FederatedAssertion) (domain.Session, error) {
	gen := m.beginResolving()

	principal, err := m.provider.SignInFederated(ctx, assertion)
	if err != nil {
		m.settle(gen, m.clearLocked)
		return m.Current(), fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	rec, err := m.directory.Get(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			if !m.settle(gen, func() {
				m.pending = &principal
				m.principal = nil
				m.role = nil
				m.loading = false
				m.state = domain.StatePendingRoleSelection
			}) {
				m.revokeQuietly(ctx, principal.ID)
			}
			return m.Current(), nil
		}
		m.settle(gen, m.clearLocked)
		return m.Current(), fmt.Errorf("%w: %v", ErrRoleResolutionFailed, err)
	}

	m.touchLastLogin(ctx, principal.ID)

	if !m.settle(gen, func() {
		m.principal = &principal
		role := rec.Role
		m.role = &role
		m.pending = nil
		m.loading = false
		m.state = domain.StateAuthenticated
	}) {
		m.revokeQuietly(ctx, principal.ID)
		return m.Current(), fmt.Errorf("%w: session superseded", ErrAuthenticationFailed)
	}

	return m.Current(), nil
}

// CompleteRegistration persists a role record for the pending principal and
// transitions to Authenticated. On a write failure the session stays
// PendingRoleSelection so the user can retry; there is no partial transition.
func (m *SessionManager) CompleteRegistration(ctx context.Context, role domain.Role) (domain.Session, error) {
	if !role.IsValid() {
		return m.Current(), fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	m.mu.Lock()
	if m.state != domain.StatePendingRoleSelection || m.pending == nil {
		m.mu.Unlock()
		return m.Current(), ErrNoPendingRegistration
	}
	pending := *m.pending
	gen := m.generation
	m.mu.Unlock()

	now := m.now()
	first, last := splitDisplayName(pending.DisplayName)
	rec := domain.RoleRecord{
		ID:          pending.ID,
		Email:       pending.Email,
		Role:        role,
		FirstName:   first,
		LastName:    last,
		CreatedAt:   now,
		LastLoginAt: now,
	}

	payload, err := json.Marshal(ports.UserRegisteredEvent{
		UserID:       rec.ID,
		Email:        rec.Email,
		Role:         rec.Role,
		RegisteredAt: now,
	})
	if err != nil {
		return m.Current(), fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	if err := m.directory.Create(ctx, rec, payload); err != nil {
		return m.Current(), fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	if !m.settle(gen, func() {
		m.principal = &pending
		r := role
		m.role = &r
		m.pending = nil
		m.loading = false
		m.state = domain.StateAuthenticated
	}) {
		// A logout won the race while the record was being written. The
		// record stands (the next sign-in authenticates normally) but this
		// session stays signed out.
		return m.Current(), fmt.Errorf("%w: session superseded", ErrNoPendingRegistration)
	}

	return m.Current(), nil
}

// AbandonRegistration signs out a pending principal that dismissed role
// selection. A principal must never survive a restart signed in but
// roleless: it would pass the guard's unauthenticated check while failing
// every role check.
func (m *SessionManager) AbandonRegistration(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return m.Current(), ErrNoPendingRegistration
	}
	pendingID := m.pending.ID
	m.mu.Unlock()

	return m.logout(ctx, pendingID)
}

// Logout revokes the provider session and clears all local state. Local
// state is cleared even when revocation fails; the returned error is
// ErrRevocationFailed in that case and callers log it rather than surface it.
func (m *SessionManager) Logout(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	var id string
	switch {
	case m.principal != nil:
		id = m.principal.ID
	case m.pending != nil:
		id = m.pending.ID
	}
	m.mu.Unlock()

	return m.logout(ctx, id)
}

func (m *SessionManager) logout(ctx context.Context, principalID string) (domain.Session, error) {
	var revokeErr error
	if principalID != "" {
		if err := m.provider.SignOut(ctx, principalID); err != nil {
			revokeErr = fmt.Errorf("%w: %v", ErrRevocationFailed, err)
		}
	}

	m.mu.Lock()
	m.generation++ // discard any in-flight resolution
	m.clearLocked()
	m.mu.Unlock()

	return m.Current(), revokeErr
}

func (m *SessionManager) clearLocked() {
	m.principal = nil
	m.role = nil
	m.pending = nil
	m.loading = false
	m.state = domain.StateUnauthenticated
}

// holds reports whether the session currently carries the principal, either
// resolved or pending role selection. The registry uses it to route provider
// state changes to the sessions they concern.
func (m *SessionManager) holds(principalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.principal != nil && m.principal.ID == principalID {
		return true
	}
	return m.pending != nil && m.pending.ID == principalID
}

// ApplyStateChange applies a provider-initiated transition: a remote
// sign-out clears the session, a refresh re-resolves the principal's role.
// Callers route changes here only for sessions that hold the principal;
// user-triggered operations go through the methods above.
func (m *SessionManager) ApplyStateChange(ctx context.Context, change ports.StateChange) {
	if change.Principal == nil {
		m.mu.Lock()
		m.generation++
		m.clearLocked()
		m.mu.Unlock()
		return
	}

	principal := *change.Principal
	gen := m.beginResolving()

	rec, err := m.directory.Get(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			m.settle(gen, func() {
				m.pending = &principal
				m.principal = nil
				m.role = nil
				m.loading = false
				m.state = domain.StatePendingRoleSelection
			})
			return
		}
		log.Printf("session %s: role resolution failed for %s: %v", m.id, principal.ID, err)
		m.settle(gen, m.clearLocked)
		return
	}

	m.settle(gen, func() {
		m.principal = &principal
		role := rec.Role
		m.role = &role
		m.pending = nil
		m.loading = false
		m.state = domain.StateAuthenticated
	})
}

func (m *SessionManager) touchLastLogin(ctx context.Context, principalID string) {
	if err := m.directory.TouchLastLogin(ctx, principalID, m.now()); err != nil {
		log.Printf("session %s: failed to touch last login for %s: %v", m.id, principalID, err)
	}
}

func (m *SessionManager) revokeQuietly(ctx context.Context, principalID string) {
	if err := m.provider.SignOut(ctx, principalID); err != nil {
		log.Printf("session %s: failed to revoke provider session for %s: %v", m.id, principalID, err)
	}
}

func splitDisplayName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
