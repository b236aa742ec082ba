package identity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

// ErrUnknownCredentials is returned for a bad email/password pair. The same
// error covers "no such account" and "wrong password" so responses don't
// leak which emails exist.
var ErrUnknownCredentials = errors.New("unknown email or password")

// Credential is a password account held by the provider, separate from the
// role directory: having credentials says who you are, never what you may do.
type Credential struct {
	PrincipalID  string
	Email        string
	DisplayName  string
	PasswordHash []byte
}

// CredentialStore looks up password accounts.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
}

// SessionRecorder tracks provider-side sessions so sign-out has something to
// revoke.
type SessionRecorder interface {
	Record(ctx context.Context, principalID string) error
	Revoke(ctx context.Context, principalID string) error
}

// Provider composes the password and federated sign-in paths behind the
// single identity-provider port and pushes state changes to subscribers.
type Provider struct {
	credentials CredentialStore
	sessions    SessionRecorder
	google      *GoogleProvider
	changes     chan ports.StateChange
}

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ ports.StateNotifier    = (*Provider)(nil)
)

func NewProvider(credentials CredentialStore, sessions SessionRecorder, google *GoogleProvider) *Provider {
	return &Provider{
		credentials: credentials,
		sessions:    sessions,
		google:      google,
		changes:     make(chan ports.StateChange, 16),
	}
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (domain.Principal, error) {
	cred, err := p.credentials.FindByEmail(ctx, email)
	if err != nil {
		return domain.Principal{}, ErrUnknownCredentials
	}

	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return domain.Principal{}, ErrUnknownCredentials
	}

	principal := domain.Principal{
		ID:          cred.PrincipalID,
		Email:       cred.Email,
		DisplayName: cred.DisplayName,
	}
	p.recordSignIn(ctx, principal)
	return principal, nil
}

func (p *Provider) SignInFederated(ctx context.Context, assertion ports.FederatedAssertion) (domain.Principal, error) {
	if p.google == nil {
		return domain.Principal{}, errors.New("federated sign-in is not configured")
	}

	principal, err := p.google.Exchange(ctx, assertion)
	if err != nil {
		return domain.Principal{}, err
	}

	p.recordSignIn(ctx, principal)
	return principal, nil
}

// SignOut revokes the provider-side session. On failure the caller still
// clears local state; the error only reports that revocation didn't happen.
func (p *Provider) SignOut(ctx context.Context, principalID string) error {
	if err := p.sessions.Revoke(ctx, principalID); err != nil {
		return fmt.Errorf("revoke provider session: %w", err)
	}
	p.notify(ports.StateChange{PrincipalID: principalID})
	return nil
}

// StateChanges exposes the provider's push stream. Slow consumers drop
// notifications rather than block sign-in.
func (p *Provider) StateChanges() <-chan ports.StateChange {
	return p.changes
}

func (p *Provider) recordSignIn(ctx context.Context, principal domain.Principal) {
	if err := p.sessions.Record(ctx, principal.ID); err != nil {
		log.Printf("identity: failed to record provider session for %s: %v", principal.ID, err)
	}
	p.notify(ports.StateChange{PrincipalID: principal.ID, Principal: &principal})
}

func (p *Provider) notify(change ports.StateChange) {
	select {
	case p.changes <- change:
	default:
		log.Printf("identity: dropping state change notification (no consumer)")
	}
}
