package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"training-portal/internal/auth"
	"training-portal/internal/domain"
)

// ProfileStore is an in-memory implementation of auth.ProfileStore and the
// admin user directory.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	now      func() time.Time
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]domain.Profile),
		now:      time.Now,
	}
}

func (s *ProfileStore) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *ProfileStore) UpsertProfile(_ context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[profile.ID]; ok {
		profile.CreatedAt = existing.CreatedAt
	}
	profile.UpdatedAt = s.now()
	s.profiles[profile.ID] = profile
	return nil
}

func (s *ProfileStore) UpdateProfile(_ context.Context, id string, changes auth.ProfileChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	if changes.Role != nil {
		profile.Role = *changes.Role
	}
	if changes.PasswordChangeRequired != nil {
		profile.PasswordChangeRequired = *changes.PasswordChangeRequired
	}
	profile.UpdatedAt = s.now()
	s.profiles[id] = profile
	return nil
}

func (s *ProfileStore) Ping(_ context.Context) bool {
	return true
}

func (s *ProfileStore) ListProfiles(_ context.Context) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profiles := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].Email < profiles[j].Email
	})
	return profiles, nil
}
