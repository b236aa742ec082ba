package ports

import (
	"context"
	"errors"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

// ErrRecordNotFound is returned by RoleDirectory.Get when no role record
// exists for a principal id. Callers must distinguish it from transport
// failures: the former drives the registration flow, the latter must never
// advance a session.
var ErrRecordNotFound = errors.New("role record not found")

// RoleDirectory is the remote document store mapping principal id to role
// record.
type RoleDirectory interface {
	Get(ctx context.Context, principalID string) (*domain.RoleRecord, error)

	// Create persists a new role record together with an outbox payload in
	// one transaction, so the registration event cannot be lost or
	// double-sent relative to the record itself.
	Create(ctx context.Context, rec domain.RoleRecord, outboxPayload []byte) error

	// Update merge-updates the mutable profile fields and role of an
	// existing record.
	Update(ctx context.Context, rec domain.RoleRecord) error

	Delete(ctx context.Context, principalID string) error
	List(ctx context.Context) ([]domain.RoleRecord, error)

	// QueryByUsername returns every record claiming the username. Uniqueness
	// built on this is advisory: two concurrent checks can both see zero
	// matches.
	QueryByUsername(ctx context.Context, username string) ([]domain.RoleRecord, error)

	TouchLastLogin(ctx context.Context, principalID string, at time.Time) error
}
