package ports

import (
	"context"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

// UserRegisteredEvent is emitted when a pending principal completes
// registration and a role record is created.
type UserRegisteredEvent struct {
	UserID       string      `json:"user_id"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	RegisteredAt time.Time   `json:"registered_at"`
}

type RegistrationEventPublisher interface {
	PublishUserRegistered(ctx context.Context, evt UserRegisteredEvent) error
}
