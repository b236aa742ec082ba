package ports

import (
	"context"
	"errors"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired
// session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore mirrors session snapshots to shared storage with a TTL, so
// the read path and restarted processes see consistent state. The in-process
// session manager remains the source of truth for transitions.
type SessionStore interface {
	Save(ctx context.Context, sess domain.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
}
