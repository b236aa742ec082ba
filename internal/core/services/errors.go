package services

import "errors"

// Error taxonomy for session operations. Handlers match with errors.Is to
// pick status codes; none of these is returned without the session having
// settled into a defined state first.
var (
	// ErrAuthenticationFailed covers bad credentials and provider
	// rejection. The session is unchanged.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRoleResolutionFailed covers directory read errors during login.
	// The session never advances to authenticated on this error; the
	// operation is retryable.
	ErrRoleResolutionFailed = errors.New("role resolution failed")

	// ErrPersistenceFailed covers registration write failures. The session
	// stays pending role selection so the user can retry.
	ErrPersistenceFailed = errors.New("registration write failed")

	// ErrRevocationFailed means the provider sign-out call failed during
	// logout. Local session state is cleared regardless; callers log this
	// rather than surfacing it.
	ErrRevocationFailed = errors.New("provider session revocation failed")

	// ErrNoPendingRegistration is returned when registration completion or
	// abandonment is requested without a pending principal.
	ErrNoPendingRegistration = errors.New("no registration pending")

	// ErrInvalidRole is returned when a registration names a role outside
	// the closed set.
	ErrInvalidRole = errors.New("invalid role")
)
