package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/services"
	"github.com/oakridge/school-admin/identity-access-service/internal/observability/metrics"
)

// SessionSource resolves a session id to its current snapshot.
type SessionSource interface {
	Snapshot(ctx context.Context, id string) (domain.Session, error)
}

// AuthMiddleware gates routes on the live session state. The bearer token
// only names the session; the guard decision is recomputed from the current
// snapshot on every request, so a role that resolves after an initial denial
// re-admits the route without a new token.
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	sessions  SessionSource
}

func NewAuthMiddleware(publicKey *rsa.PublicKey, sessions SessionSource) *AuthMiddleware {
	return &AuthMiddleware{
		publicKey: publicKey,
		sessions:  sessions,
	}
}

type contextKey string

const (
	SessionIDKey contextKey = "sessionID"
	UserIDKey    contextKey = "userID"
	RoleKey      contextKey = "role"
)

type denyResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
}

// RequireRole admits the request only when the session's guard decision
// allows it. An empty role list still requires an authenticated principal.
func (m *AuthMiddleware) RequireRole(roles []domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := m.extractSessionID(r)
		if err != nil {
			log.Printf("auth middleware: %v", err)
			deny(w, http.StatusUnauthorized, services.RedirectLogin)
			return
		}

		sess, err := m.sessions.Snapshot(r.Context(), sid)
		if err != nil {
			log.Printf("auth middleware: unknown session %s: %v", sid, err)
			deny(w, http.StatusUnauthorized, services.RedirectLogin)
			return
		}

		decision := services.Authorize(sess, roles...)
		if !decision.Allowed {
			status := http.StatusForbidden
			if decision.Redirect == services.RedirectLogin {
				status = http.StatusUnauthorized
			}
			metrics.GuardDenials.WithLabelValues(string(decision.Redirect)).Inc()
			deny(w, status, decision.Redirect)
			return
		}

		ctx := context.WithValue(r.Context(), SessionIDKey, sid)
		if sess.Principal != nil {
			ctx = context.WithValue(ctx, UserIDKey, sess.Principal.ID)
		}
		if sess.Role != nil {
			ctx = context.WithValue(ctx, RoleKey, string(*sess.Role))
		}

		next(w, r.WithContext(ctx))
	}
}

// WithSession authenticates the bearer token and injects the session id
// without evaluating the guard. Registration and logout endpoints use it: a
// pending principal holds a session but no role yet.
func (m *AuthMiddleware) WithSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := m.extractSessionID(r)
		if err != nil {
			log.Printf("auth middleware: %v", err)
			deny(w, http.StatusUnauthorized, services.RedirectLogin)
			return
		}

		ctx := context.WithValue(r.Context(), SessionIDKey, sid)
		next(w, r.WithContext(ctx))
	}
}

func (m *AuthMiddleware) extractSessionID(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingAuthHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errMalformedAuthHeader
	}

	return sessionIDFromToken(parts[1], m.publicKey)
}

var (
	errMissingAuthHeader   = errHeader("missing authorization header")
	errMalformedAuthHeader = errHeader("malformed authorization header")
)

type errHeader string

func (e errHeader) Error() string { return string(e) }

func deny(w http.ResponseWriter, status int, target services.RedirectTarget) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(denyResponse{
		Error:    http.StatusText(status),
		Redirect: string(target),
	})
}
