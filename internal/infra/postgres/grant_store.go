package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/domain"
)

// GrantStore implements quiz.GrantStore on top of the quiz_access table.
type GrantStore struct {
	pool *pgxpool.Pool
}

func NewGrantStore(pool *pgxpool.Pool) *GrantStore {
	return &GrantStore{pool: pool}
}

func (s *GrantStore) GetGrantByToken(ctx context.Context, token string) (domain.QuizAccessGrant, error) {
	var grant domain.QuizAccessGrant
	row := s.pool.QueryRow(ctx, `
		SELECT id, quiz_id, token, expiration, used_at, created_at
		FROM quiz_access
		WHERE token = $1
	`, token)
	err := row.Scan(&grant.ID, &grant.QuizID, &grant.Token, &grant.Expiration, &grant.UsedAt, &grant.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizAccessGrant{}, domain.ErrGrantNotFound
	}
	if err != nil {
		return domain.QuizAccessGrant{}, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

func (s *GrantStore) MarkUsed(ctx context.Context, grantID string, usedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_access SET used_at = $2 WHERE id = $1 AND used_at IS NULL
	`, grantID, usedAt)
	if err != nil {
		return fmt.Errorf("mark grant used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGrantNotFound
	}
	return nil
}

// CreateGrant provisions a grant row. Admin surface, used by seeding.
func (s *GrantStore) CreateGrant(ctx context.Context, grant domain.QuizAccessGrant) (domain.QuizAccessGrant, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_access (id, quiz_id, token, expiration, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, grant.ID, grant.QuizID, grant.Token, grant.Expiration, grant.UsedAt, grant.CreatedAt)
	if err != nil {
		return domain.QuizAccessGrant{}, fmt.Errorf("create grant: %w", err)
	}
	return grant, nil
}
