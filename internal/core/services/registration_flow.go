package services

import (
	"context"
	"fmt"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

// RegistrationFlow presents the closed role set to a federated principal
// that has no role record yet, and drives the session manager through
// completion or abandonment. Role assignment is always an explicit user
// choice; nothing is defaulted.
type RegistrationFlow struct{}

func NewRegistrationFlow() *RegistrationFlow {
	return &RegistrationFlow{}
}

// Options returns the selectable roles in presentation order.
func (f *RegistrationFlow) Options() []domain.Role {
	return domain.AllRoles()
}

// Complete validates the raw role selection and persists it through the
// session manager. The session stays pending on failure.
func (f *RegistrationFlow) Complete(ctx context.Context, m *SessionManager, rawRole string) (domain.Session, error) {
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return m.Current(), fmt.Errorf("%w: %q", ErrInvalidRole, rawRole)
	}
	return m.CompleteRegistration(ctx, role)
}

// Abandon handles a dismissed role-selection dialog: the pending principal
// is signed out so it cannot linger signed-in-but-roleless.
func (f *RegistrationFlow) Abandon(ctx context.Context, m *SessionManager) (domain.Session, error) {
	return m.AbandonRegistration(ctx)
}
