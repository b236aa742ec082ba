package domain

// SessionState enumerates the authentication state machine.
type SessionState string

const (
	StateUnauthenticated      SessionState = "unauthenticated"
	StateResolving            SessionState = "resolving"
	StateAuthenticated        SessionState = "authenticated"
	StatePendingRoleSelection SessionState = "pending_role_selection"
)

// Session is a read-only snapshot of one logical user session.
//
// Invariant: Role != nil implies Principal != nil and Pending == nil.
// Loading is true exactly while role resolution for the current principal is
// in flight; no consumer may read Role before Loading drops.
type Session struct {
	ID         string       `json:"id"`
	State      SessionState `json:"state"`
	Principal  *Principal   `json:"principal,omitempty"`
	Role       *Role        `json:"role,omitempty"`
	Pending    *Principal   `json:"pending,omitempty"`
	Loading    bool         `json:"loading"`
	Generation uint64       `json:"generation"`
}

// Authenticated reports whether the session holds a principal with a
// resolved role.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.Principal != nil && s.Role != nil
}

// HasPrincipal reports whether any principal is attached, including one
// still pending role selection.
func (s Session) HasPrincipal() bool {
	return s.Principal != nil || s.Pending != nil
}
