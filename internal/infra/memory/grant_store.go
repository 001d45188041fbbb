package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"training-portal/internal/domain"
)

// GrantStore is an in-memory implementation of quiz.GrantStore.
type GrantStore struct {
	mu     sync.RWMutex
	grants map[string]domain.QuizAccessGrant // by id
}

func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[string]domain.QuizAccessGrant)}
}

// CreateGrant registers a grant and returns it with an id assigned. Grants
// are normally provisioned out-of-band; this is the seeding surface.
func (s *GrantStore) CreateGrant(_ context.Context, grant domain.QuizAccessGrant) (domain.QuizAccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	s.grants[grant.ID] = grant
	return grant, nil
}

func (s *GrantStore) GetGrantByToken(_ context.Context, token string) (domain.QuizAccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, grant := range s.grants {
		if grant.Token == token {
			return grant, nil
		}
	}
	return domain.QuizAccessGrant{}, domain.ErrGrantNotFound
}

func (s *GrantStore) MarkUsed(_ context.Context, grantID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[grantID]
	if !ok {
		return domain.ErrGrantNotFound
	}
	grant.UsedAt = &usedAt
	s.grants[grantID] = grant
	return nil
}
