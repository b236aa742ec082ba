package ports

import (
	"context"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

// FederatedAssertion carries the callback parameters of a federated sign-in
// (authorization code flow). The adapter verifies state and nonce.
type FederatedAssertion struct {
	Code  string
	State string
	Nonce string
}

// IdentityProvider wraps the external authentication service. It issues
// opaque principals and owns their provider-side sessions; it knows nothing
// about roles.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (domain.Principal, error)
	SignInFederated(ctx context.Context, assertion FederatedAssertion) (domain.Principal, error)
	// SignOut revokes the provider-side session for the principal. Callers
	// must clear local state even when revocation fails.
	SignOut(ctx context.Context, principalID string) error
}

// FederatedFlowStarter is implemented by providers that need a browser
// round-trip: Begin returns the provider auth URL plus the state and nonce
// the caller must carry into the later FederatedAssertion.
type FederatedFlowStarter interface {
	Begin(ctx context.Context) (authURL, state, nonce string, err error)
}

// StateChange is pushed by the identity provider whenever its view of a
// principal changes. PrincipalID names the affected principal so a consumer
// holding many sessions can route the change; a nil Principal means that
// principal signed out.
type StateChange struct {
	PrincipalID string
	Principal   *domain.Principal
}

// StateNotifier exposes the provider's push-notification stream. The session
// registry consumes it to cover provider-initiated sign-outs and refreshes.
type StateNotifier interface {
	StateChanges() <-chan StateChange
}
