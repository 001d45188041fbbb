package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/domain"
)

// ResultStore implements quiz.ResultStore and the admin results reader on
// top of the quiz_results table. Answers are stored as JSONB.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) InsertResult(ctx context.Context, result domain.QuizResult) (domain.QuizResult, error) {
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_results
			(id, quiz_id, ldap, supervisor, market, score, verdict, answers, time_taken_seconds, completed_at, certificate_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, result.ID, result.QuizID,
		result.Attribution.LDAP, result.Attribution.Supervisor, result.Attribution.Market,
		result.Score, result.Verdict, answers,
		int64(result.TimeTaken.Seconds()), result.CompletedAt, nullable(result.CertificateURL))
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("insert result: %w", err)
	}
	return result, nil
}

func (s *ResultStore) ListResults(ctx context.Context, filters domain.ResultFilters) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, ldap, supervisor, market, score, verdict, answers, time_taken_seconds, completed_at, certificate_url
		FROM quiz_results
		WHERE ($1::timestamptz IS NULL OR completed_at >= $1)
		  AND ($2::timestamptz IS NULL OR completed_at <= $2)
		  AND ($3::text IS NULL OR lower(ldap) = lower($3))
		ORDER BY completed_at DESC
	`, nullableTime(filters.Since), nullableTime(filters.Until), nullable(filters.LDAP))
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.QuizResult
	for rows.Next() {
		var (
			r       domain.QuizResult
			answers []byte
			seconds int64
			certURL *string
		)
		if err := rows.Scan(&r.ID, &r.QuizID,
			&r.Attribution.LDAP, &r.Attribution.Supervisor, &r.Attribution.Market,
			&r.Score, &r.Verdict, &answers, &seconds, &r.CompletedAt, &certURL); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		r.TimeTaken = time.Duration(seconds) * time.Second
		if certURL != nil {
			r.CertificateURL = *certURL
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
