package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

// UsernameChecker answers availability queries for the directory-management
// screen and proposes alternatives when a username is taken. Uniqueness here
// is advisory only: two concurrent checks can both observe "unique", and the
// directory carries no compare-and-swap for it.
type UsernameChecker struct {
	directory ports.RoleDirectory
	randInt   func(n int) int
}

var _ ports.UsernameService = (*UsernameChecker)(nil)

func NewUsernameChecker(directory ports.RoleDirectory) *UsernameChecker {
	return &UsernameChecker{
		directory: directory,
		randInt:   rand.IntN,
	}
}

// CheckUnique reports whether no directory record claims the username. A
// single match whose id equals excludeID counts as unique, so a record can
// keep its own username during an edit.
func (c *UsernameChecker) CheckUnique(ctx context.Context, username, excludeID string) (bool, error) {
	matches, err := c.directory.QueryByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return false, fmt.Errorf("username query: %w", err)
	}
	for _, m := range matches {
		if m.ID != excludeID {
			return false, nil
		}
	}
	return true, nil
}

// SuggestAlternatives builds candidate usernames from the person's name. The
// shape is deterministic (first.last always leads) while one variant carries
// a random numeric suffix; the rejected value never appears in the output.
func (c *UsernameChecker) SuggestAlternatives(firstName, lastName, rejected string) []string {
	first := normalizeUsername(firstName)
	last := normalizeUsername(lastName)
	rejected = normalizeUsername(rejected)

	var candidates []string
	if first != "" && last != "" {
		candidates = append(candidates,
			first+"."+last,
			first+last,
			first[:1]+last,
			first+last[:1],
			fmt.Sprintf("%s.%s%d", first, last, 10+c.randInt(90)),
		)
	} else if single := first + last; single != "" {
		candidates = append(candidates,
			single,
			fmt.Sprintf("%s%d", single, 10+c.randInt(90)),
		)
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		if cand == "" || cand == rejected || seen[cand] {
			continue
		}
		seen[cand] = true
		out = append(out, cand)
	}
	return out
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
