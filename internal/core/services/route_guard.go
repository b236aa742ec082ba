package services

import (
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

// RedirectTarget is where a denied navigation is sent.
type RedirectTarget string

const (
	RedirectNone         RedirectTarget = ""
	RedirectLogin        RedirectTarget = "/login"
	RedirectUnauthorized RedirectTarget = "/unauthorized"
)

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allowed  bool
	Redirect RedirectTarget
}

// Authorize gates a navigation by authentication presence and role
// membership. It is a pure function of the session snapshot, so callers must
// re-evaluate it on every navigation and on every session transition: role
// resolution is asynchronous relative to principal resolution, and a role
// arriving later must be able to re-admit a view denied while loading.
func Authorize(s domain.Session, required ...domain.Role) Decision {
	if s.Principal == nil {
		return Decision{Redirect: RedirectLogin}
	}
	if len(required) > 0 {
		if s.Role == nil {
			return Decision{Redirect: RedirectUnauthorized}
		}
		for _, r := range required {
			if *s.Role == r {
				return Decision{Allowed: true}
			}
		}
		return Decision{Redirect: RedirectUnauthorized}
	}
	return Decision{Allowed: true}
}
