package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/oakridge/school-admin/identity-access-service/internal/config"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

const userRegisteredEventType = "user.registered"

// RoleDirectoryRepository implements ports.RoleDirectory on PostgreSQL.
// Registration writes go through a transaction that also inserts the outbox
// row, so the event exists iff the record does.
type RoleDirectoryRepository struct {
	db *sql.DB
	cb *gobreaker.CircuitBreaker
}

var _ ports.RoleDirectory = (*RoleDirectoryRepository)(nil)

func NewRoleDirectoryRepository(db *sql.DB) *RoleDirectoryRepository {
	return &RoleDirectoryRepository{
		db: db,
		cb: config.NewCircuitBreaker("PostgreSQL"),
	}
}

func (r *RoleDirectoryRepository) Get(ctx context.Context, principalID string) (*domain.RoleRecord, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		var rec domain.RoleRecord
		var username, firstName, lastName sql.NullString
		err := r.db.QueryRowContext(ctx,
			`SELECT id, email, role, username, first_name, last_name, created_at, last_login_at
			 FROM role_records WHERE id = $1`,
			principalID,
		).Scan(&rec.ID, &rec.Email, &rec.Role, &username, &firstName, &lastName, &rec.CreatedAt, &rec.LastLoginAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrRecordNotFound
		}
		if err != nil {
			return nil, err
		}
		rec.Username = username.String
		rec.FirstName = firstName.String
		rec.LastName = lastName.String
		return &rec, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.RoleRecord), nil
}

func (r *RoleDirectoryRepository) Create(ctx context.Context, rec domain.RoleRecord, outboxPayload []byte) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO role_records (id, email, role, username, first_name, last_name, created_at, last_login_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
			rec.ID, rec.Email, rec.Role, rec.Username, rec.FirstName, rec.LastName, rec.CreatedAt, rec.LastLoginAt,
		)
		if err != nil {
			return nil, err
		}

		eventID := uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox_events (id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
			eventID, userRegisteredEventType, outboxPayload,
		)
		if err != nil {
			return nil, err
		}

		// Wake the relay; it also catches up periodically if this is missed.
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify('outbox_channel', $1)`, eventID); err != nil {
			return nil, err
		}

		return nil, tx.Commit()
	})
	return err
}

func (r *RoleDirectoryRepository) Update(ctx context.Context, rec domain.RoleRecord) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		res, err := r.db.ExecContext(ctx,
			`UPDATE role_records
			 SET email = $2, role = $3, username = NULLIF($4, ''),
			     first_name = NULLIF($5, ''), last_name = NULLIF($6, '')
			 WHERE id = $1`,
			rec.ID, rec.Email, rec.Role, rec.Username, rec.FirstName, rec.LastName,
		)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ports.ErrRecordNotFound
		}
		return nil, nil
	})
	return err
}

func (r *RoleDirectoryRepository) Delete(ctx context.Context, principalID string) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		_, err := r.db.ExecContext(ctx, `DELETE FROM role_records WHERE id = $1`, principalID)
		return nil, err
	})
	return err
}

func (r *RoleDirectoryRepository) List(ctx context.Context) ([]domain.RoleRecord, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT id, email, role, username, first_name, last_name, created_at, last_login_at
			 FROM role_records ORDER BY created_at`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRecords(rows)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.RoleRecord), nil
}

func (r *RoleDirectoryRepository) QueryByUsername(ctx context.Context, username string) ([]domain.RoleRecord, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT id, email, role, username, first_name, last_name, created_at, last_login_at
			 FROM role_records WHERE username = $1`,
			username)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRecords(rows)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.RoleRecord), nil
}

func (r *RoleDirectoryRepository) TouchLastLogin(ctx context.Context, principalID string, at time.Time) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		_, err := r.db.ExecContext(ctx,
			`UPDATE role_records SET last_login_at = $2 WHERE id = $1`,
			principalID, at)
		return nil, err
	})
	return err
}

func scanRecords(rows *sql.Rows) ([]domain.RoleRecord, error) {
	var records []domain.RoleRecord
	for rows.Next() {
		var rec domain.RoleRecord
		var username, firstName, lastName sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.Role, &username, &firstName, &lastName,
			&rec.CreatedAt, &rec.LastLoginAt); err != nil {
			return nil, err
		}
		rec.Username = username.String
		rec.FirstName = firstName.String
		rec.LastName = lastName.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
