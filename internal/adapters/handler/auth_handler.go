package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/middleware"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/services"
	"github.com/oakridge/school-admin/identity-access-service/internal/observability/metrics"
)

// AuthHandler exposes the session manager operations over HTTP. Each sign-in
// creates a fresh session; the returned bearer token names that session.
type AuthHandler struct {
	registry  *services.Registry
	federated ports.FederatedFlowStarter
	flow      *services.RegistrationFlow
	tokens    *middleware.TokenIssuer
}

func NewAuthHandler(registry *services.Registry, federated ports.FederatedFlowStarter, flow *services.RegistrationFlow, tokens *middleware.TokenIssuer) *AuthHandler {
	return &AuthHandler{
		registry:  registry,
		federated: federated,
		flow:      flow,
		tokens:    tokens,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Message              string        `json:"message"`
	Token                string        `json:"token,omitempty"`
	Role                 string        `json:"role,omitempty"`
	Dashboard            string        `json:"dashboard,omitempty"`
	RegistrationRequired bool          `json:"registration_required,omitempty"`
	RoleOptions          []domain.Role `json:"role_options,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mgr := h.registry.Create(r.Context())
	started := time.Now()
	sess, err := mgr.Login(r.Context(), req.Email, req.Password)
	metrics.RoleResolutionSeconds.Observe(time.Since(started).Seconds())
	h.registry.Persist(r.Context(), mgr)
	if err != nil {
		metrics.SignIns.WithLabelValues("password", outcomeLabel(err)).Inc()
		writeAuthError(w, err)
		return
	}
	metrics.SignIns.WithLabelValues("password", "ok").Inc()

	h.writeSession(w, http.StatusOK, "Login successful", sess)
}

// GoogleURL starts the federated flow. The client must carry state and nonce
// into the callback.
func (h *AuthHandler) GoogleURL(w http.ResponseWriter, r *http.Request) {
	if h.federated == nil {
		http.Error(w, "federated sign-in is not configured", http.StatusNotImplemented)
		return
	}

	authURL, state, nonce, err := h.federated.Begin(r.Context())
	if err != nil {
		log.Printf("auth handler: begin federated flow: %v", err)
		http.Error(w, "failed to start federated sign-in", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": authURL,
		"state":    state,
		"nonce":    nonce,
	})
}

// GoogleCallback completes a federated sign-in. An unknown principal gets a
// session pending role selection and the selectable role options; nothing is
// written to the directory yet.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	assertion := ports.FederatedAssertion{
		Code:  r.URL.Query().Get("code"),
		State: r.URL.Query().Get("state"),
		Nonce: r.URL.Query().Get("nonce"),
	}

	mgr := h.registry.Create(r.Context())
	sess, err := mgr.FederatedSignIn(r.Context(), assertion)
	h.registry.Persist(r.Context(), mgr)
	if err != nil {
		metrics.SignIns.WithLabelValues("federated", outcomeLabel(err)).Inc()
		writeAuthError(w, err)
		return
	}
	metrics.SignIns.WithLabelValues("federated", "ok").Inc()

	if sess.State == domain.StatePendingRoleSelection {
		token, tokenErr := h.tokens.Issue(sess)
		if tokenErr != nil {
			log.Printf("auth handler: failed to issue token: %v", tokenErr)
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, SessionResponse{
			Message:              "Role selection required",
			Token:                token,
			RegistrationRequired: true,
			RoleOptions:          h.flow.Options(),
		})
		return
	}

	h.writeSession(w, http.StatusOK, "Login successful", sess)
}

// CurrentSession returns the live snapshot for the bearer's session, so
// clients re-evaluate routing whenever state changes instead of trusting a
// one-shot check at mount time.
func (h *AuthHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	sid, ok := r.Context().Value(middleware.SessionIDKey).(string)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	sess, err := h.registry.Snapshot(r.Context(), sid)
	if err != nil {
		http.Error(w, "unknown session", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid, ok := r.Context().Value(middleware.SessionIDKey).(string)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	// End clears local state even when provider revocation fails; a stuck
	// authenticated client is worse than an already-signed-out provider.
	if err := h.registry.End(r.Context(), sid); err != nil {
		log.Printf("auth handler: logout session %s: %v", sid, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, message string, sess domain.Session) {
	token, err := h.tokens.Issue(sess)
	if err != nil {
		log.Printf("auth handler: failed to issue token: %v", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	resp := SessionResponse{
		Message: message,
		Token:   token,
	}
	if sess.Role != nil {
		resp.Role = string(*sess.Role)
		resp.Dashboard = domain.DashboardFor(*sess.Role)
	}
	writeJSON(w, status, resp)
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAuthenticationFailed):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, services.ErrRoleResolutionFailed):
		// Retryable: the directory read failed and the session never advanced.
		http.Error(w, "sign-in temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, services.ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, services.ErrRoleResolutionFailed):
		return "role_resolution_failed"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
