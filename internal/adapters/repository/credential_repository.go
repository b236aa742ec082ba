package repository

import (
	"context"
	"database/sql"

	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/identity"
)

// CredentialRepository backs the password sign-in path and the provider-side
// session ledger that sign-out revokes.
type CredentialRepository struct {
	db *sql.DB
}

var (
	_ identity.CredentialStore = (*CredentialRepository)(nil)
	_ identity.SessionRecorder = (*CredentialRepository)(nil)
)

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*identity.Credential, error) {
	var cred identity.Credential
	err := r.db.QueryRowContext(ctx,
		`SELECT principal_id, email, display_name, password_hash
		 FROM credentials WHERE lower(email) = lower($1)`,
		email,
	).Scan(&cred.PrincipalID, &cred.Email, &cred.DisplayName, &cred.PasswordHash)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepository) Record(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identity_sessions (principal_id, issued_at) VALUES ($1, NOW())`,
		principalID,
	)
	return err
}

func (r *CredentialRepository) Revoke(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM identity_sessions WHERE principal_id = $1`,
		principalID,
	)
	return err
}
