package domain

import "time"

// Principal is the opaque identity issued by the external identity provider.
// It is immutable once issued and carries no authorization information.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// RoleRecord is the directory document keyed by principal id. It is created
// on first registration, touched on every login, and edited from the
// directory-management screens.
type RoleRecord struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	Username    string    `json:"username,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}
