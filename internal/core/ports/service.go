package ports

import (
	"context"
)

// UsernameService checks username availability and proposes alternatives.
// Results are advisory; real enforcement needs a unique constraint in the
// directory itself.
type UsernameService interface {
	CheckUnique(ctx context.Context, username, excludeID string) (bool, error)
	SuggestAlternatives(firstName, lastName, rejected string) []string
}
