package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/auth"
	"training-portal/internal/domain"
)

// ProfileStore implements auth.ProfileStore and the admin user directory on
// top of the users table.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var profile domain.Profile
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, role, password_change_required, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	err := row.Scan(&profile.ID, &profile.Email, &profile.Role, &profile.PasswordChangeRequired, &profile.CreatedAt, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w: %v", domain.ErrServiceUnreachable, err)
	}
	return profile, nil
}

func (s *ProfileStore) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, role, password_change_required, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    role = EXCLUDED.role,
		    password_change_required = EXCLUDED.password_change_required,
		    updated_at = EXCLUDED.updated_at
	`, profile.ID, profile.Email, profile.Role, profile.PasswordChangeRequired, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w: %v", domain.ErrServiceUnreachable, err)
	}
	return nil
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, id string, changes auth.ProfileChanges) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET role = COALESCE($2, role),
		    password_change_required = COALESCE($3, password_change_required),
		    updated_at = $4
		WHERE id = $1
	`, id, roleArg(changes.Role), changes.PasswordChangeRequired, time.Now())
	if err != nil {
		return fmt.Errorf("update profile: %w: %v", domain.ErrServiceUnreachable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (s *ProfileStore) Ping(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

func (s *ProfileStore) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, role, password_change_required, created_at, updated_at
		FROM users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w: %v", domain.ErrServiceUnreachable, err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.Role, &p.PasswordChangeRequired, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func roleArg(role *domain.Role) *string {
	if role == nil {
		return nil
	}
	value := string(*role)
	return &value
}
