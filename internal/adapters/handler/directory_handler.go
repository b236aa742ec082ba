package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

// DirectoryHandler serves the directory-management screen: role record CRUD
// plus username availability checks and suggestions.
type DirectoryHandler struct {
	directory ports.RoleDirectory
	usernames ports.UsernameService
}

func NewDirectoryHandler(directory ports.RoleDirectory, usernames ports.UsernameService) *DirectoryHandler {
	return &DirectoryHandler{
		directory: directory,
		usernames: usernames,
	}
}

// CheckUsername reports availability. exclude_id lets a record keep its own
// username during an edit. The answer is advisory; two concurrent checks can
// both see "unique".
func (h *DirectoryHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	unique, err := h.usernames.CheckUnique(r.Context(), username, r.URL.Query().Get("exclude_id"))
	if err != nil {
		log.Printf("directory handler: username check: %v", err)
		http.Error(w, "username check failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"unique":   unique,
	})
}

// SuggestUsernames proposes alternatives after a rejected username.
func (h *DirectoryHandler) SuggestUsernames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	first := q.Get("first_name")
	last := q.Get("last_name")
	if first == "" && last == "" {
		http.Error(w, "first_name or last_name is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": h.usernames.SuggestAlternatives(first, last, q.Get("rejected")),
	})
}

func (h *DirectoryHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	records, err := h.directory.List(r.Context())
	if err != nil {
		log.Printf("directory handler: list users: %v", err)
		http.Error(w, "failed to list users", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": records})
}

type UpdateUserRequest struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *DirectoryHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		http.Error(w, "unsupported role", http.StatusBadRequest)
		return
	}

	rec := domain.RoleRecord{
		ID:        req.ID,
		Email:     req.Email,
		Role:      role,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := h.directory.Update(r.Context(), rec); err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Printf("directory handler: update user %s: %v", req.ID, err)
		http.Error(w, "failed to update user", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User updated"})
}

func (h *DirectoryHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := h.directory.Delete(r.Context(), id); err != nil {
		log.Printf("directory handler: delete user %s: %v", id, err)
		http.Error(w, "failed to delete user", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}
