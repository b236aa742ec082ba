package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/middleware"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/services"
	"github.com/oakridge/school-admin/identity-access-service/internal/observability/metrics"
)

func dashboardForRaw(raw string) string {
	if role, ok := domain.ParseRole(raw); ok {
		return domain.DashboardFor(role)
	}
	return ""
}

// RegistrationHandler drives the role-selection flow for federated
// principals without a role record.
type RegistrationHandler struct {
	registry *services.Registry
	flow     *services.RegistrationFlow
	tokens   *middleware.TokenIssuer
}

func NewRegistrationHandler(registry *services.Registry, flow *services.RegistrationFlow, tokens *middleware.TokenIssuer) *RegistrationHandler {
	return &RegistrationHandler{
		registry: registry,
		flow:     flow,
		tokens:   tokens,
	}
}

type CompleteRegistrationRequest struct {
	Role string `json:"role"`
}

// Options lists the selectable roles for the registration dialog.
func (h *RegistrationHandler) Options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"roles": h.flow.Options()})
}

// Complete persists the selected role for the pending principal. The session
// stays pending on a write failure so the user can retry.
func (h *RegistrationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sid, ok := r.Context().Value(middleware.SessionIDKey).(string)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	var req CompleteRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mgr, err := h.registry.Lookup(sid)
	if err != nil {
		http.Error(w, "unknown session", http.StatusUnauthorized)
		return
	}

	sess, err := h.flow.Complete(r.Context(), mgr, req.Role)
	h.registry.Persist(r.Context(), mgr)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole):
			http.Error(w, "unsupported role", http.StatusBadRequest)
		case errors.Is(err, services.ErrNoPendingRegistration):
			http.Error(w, "no registration pending", http.StatusConflict)
		case errors.Is(err, services.ErrPersistenceFailed):
			// Retryable: the session is still pending role selection.
			http.Error(w, "registration failed, please retry", http.StatusServiceUnavailable)
		default:
			http.Error(w, "registration failed", http.StatusInternalServerError)
		}
		return
	}
	metrics.Registrations.WithLabelValues(req.Role).Inc()

	token, err := h.tokens.Issue(sess)
	if err != nil {
		log.Printf("registration handler: failed to issue token: %v", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		Message:   "Registration complete",
		Token:     token,
		Role:      req.Role,
		Dashboard: dashboardForRaw(req.Role),
	})
}

// Abandon signs out a pending principal that dismissed the role-selection
// dialog, so it cannot linger signed in without a role.
func (h *RegistrationHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sid, ok := r.Context().Value(middleware.SessionIDKey).(string)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	mgr, err := h.registry.Lookup(sid)
	if err != nil {
		http.Error(w, "unknown session", http.StatusUnauthorized)
		return
	}

	if _, err := h.flow.Abandon(r.Context(), mgr); err != nil {
		if errors.Is(err, services.ErrNoPendingRegistration) {
			http.Error(w, "no registration pending", http.StatusConflict)
			return
		}
		// Revocation failure: local state is already cleared, log and move on.
		log.Printf("registration handler: abandon session %s: %v", sid, err)
	}

	if err := h.registry.End(r.Context(), sid); err != nil {
		log.Printf("registration handler: end session %s: %v", sid, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Registration abandoned"})
}
