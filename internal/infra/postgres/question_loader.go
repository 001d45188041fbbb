package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-portal/internal/domain"
)

// QuestionLoader loads quiz question sets stored as JSONB.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return decodeQuestions(raw)
}

// decodeQuestions validates the stored rows at the boundary: malformed rows
// are rejected rather than propagated, and options come back sorted by
// display order.
func decodeQuestions(raw []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	for i := range questions {
		if questions[i].ID == "" {
			return nil, fmt.Errorf("question %d: missing id", i)
		}
		switch questions[i].Type {
		case domain.QuestionSingleSelect, domain.QuestionMultiSelect, domain.QuestionTrueFalse:
		default:
			return nil, fmt.Errorf("question %s: unknown type %q", questions[i].ID, questions[i].Type)
		}
		sort.SliceStable(questions[i].Options, func(a, b int) bool {
			return questions[i].Options[a].DisplayOrder < questions[i].Options[b].DisplayOrder
		})
	}
	return questions, nil
}
