package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/domain"
)

// GuideStore implements guide.GuideStore on top of the study_guides table.
// Question sets live in a JSONB column alongside the guide row.
type GuideStore struct {
	pool *pgxpool.Pool
}

func NewGuideStore(pool *pgxpool.Pool) *GuideStore {
	return &GuideStore{pool: pool}
}

func (s *GuideStore) ListGuides(ctx context.Context, status domain.GuideStatus) ([]domain.StudyGuide, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, category, status, created_at, updated_at
		FROM study_guides
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY title
	`, statusArg(status))
	if err != nil {
		return nil, fmt.Errorf("list guides: %w", err)
	}
	defer rows.Close()

	var guides []domain.StudyGuide
	for rows.Next() {
		var g domain.StudyGuide
		if err := rows.Scan(&g.ID, &g.Title, &g.Description, &g.Category, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan guide: %w", err)
		}
		guides = append(guides, g)
	}
	return guides, rows.Err()
}

func (s *GuideStore) GetGuide(ctx context.Context, id string) (domain.StudyGuide, error) {
	var g domain.StudyGuide
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, description, category, status, created_at, updated_at
		FROM study_guides
		WHERE id = $1
	`, id)
	err := row.Scan(&g.ID, &g.Title, &g.Description, &g.Category, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StudyGuide{}, domain.ErrGuideNotFound
	}
	if err != nil {
		return domain.StudyGuide{}, fmt.Errorf("get guide: %w", err)
	}
	return g, nil
}

func (s *GuideStore) GetGuideQuestions(ctx context.Context, guideID string) ([]domain.Question, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT questions FROM study_guides WHERE id=$1`, guideID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGuideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("guide questions: %w", err)
	}
	return decodeQuestions(raw)
}

// ProgressStore implements guide.ProgressStore on top of study_progress.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) InsertProgress(ctx context.Context, progress domain.StudyProgress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO study_progress (id, guide_id, user_id, question_id, correct, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, progress.ID, progress.GuideID, progress.UserID, progress.QuestionID, progress.Correct, progress.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

func (s *ProgressStore) ListProgress(ctx context.Context, guideID, userID string) ([]domain.StudyProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, guide_id, user_id, question_id, correct, created_at
		FROM study_progress
		WHERE guide_id = $1 AND user_id = $2
		ORDER BY created_at
	`, guideID, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []domain.StudyProgress
	for rows.Next() {
		var rec domain.StudyProgress
		if err := rows.Scan(&rec.ID, &rec.GuideID, &rec.UserID, &rec.QuestionID, &rec.Correct, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func statusArg(status domain.GuideStatus) *string {
	if status == "" {
		return nil
	}
	value := string(status)
	return &value
}
