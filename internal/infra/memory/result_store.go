package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"training-portal/internal/domain"
)

// ResultStore is an in-memory implementation of quiz.ResultStore and the
// admin results reader.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.QuizResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) InsertResult(_ context.Context, result domain.QuizResult) (domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	s.results = append(s.results, result)
	return result, nil
}

func (s *ResultStore) ListResults(_ context.Context, filters domain.ResultFilters) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizResult, 0, len(s.results))
	for _, r := range s.results {
		if !filters.Since.IsZero() && r.CompletedAt.Before(filters.Since) {
			continue
		}
		if !filters.Until.IsZero() && r.CompletedAt.After(filters.Until) {
			continue
		}
		if filters.LDAP != "" && !strings.EqualFold(r.Attribution.LDAP, filters.LDAP) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
