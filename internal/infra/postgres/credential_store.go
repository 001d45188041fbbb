package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/domain"
	"training-portal/internal/infra/local"
)

// CredentialStore persists local.SessionService credentials in the
// credentials table so accounts survive restarts.
type CredentialStore struct {
	pool *pgxpool.Pool
}

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

func (s *CredentialStore) SaveCredential(ctx context.Context, cred local.StoredCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (subject_id, email, password_hash, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id) DO UPDATE
		SET email = EXCLUDED.email,
		    password_hash = EXCLUDED.password_hash,
		    updated_at = EXCLUDED.updated_at
	`, cred.SubjectID, cred.Email, cred.PasswordHash, time.Now())
	if err != nil {
		return fmt.Errorf("save credential: %w: %v", domain.ErrServiceUnreachable, err)
	}
	return nil
}

func (s *CredentialStore) ListCredentials(ctx context.Context) ([]local.StoredCredential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_id, email, password_hash
		FROM credentials
	`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w: %v", domain.ErrServiceUnreachable, err)
	}
	defer rows.Close()

	var creds []local.StoredCredential
	for rows.Next() {
		var c local.StoredCredential
		if err := rows.Scan(&c.SubjectID, &c.Email, &c.PasswordHash); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// GetCredentialByEmail looks up a stored credential for provisioning.
func (s *CredentialStore) GetCredentialByEmail(ctx context.Context, email string) (local.StoredCredential, error) {
	var c local.StoredCredential
	row := s.pool.QueryRow(ctx, `
		SELECT subject_id, email, password_hash
		FROM credentials
		WHERE lower(email) = lower($1)
	`, email)
	err := row.Scan(&c.SubjectID, &c.Email, &c.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return local.StoredCredential{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return local.StoredCredential{}, fmt.Errorf("get credential: %w: %v", domain.ErrServiceUnreachable, err)
	}
	return c, nil
}
