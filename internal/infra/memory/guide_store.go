package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"training-portal/internal/domain"
)

// GuideStore is an in-memory implementation of guide.GuideStore.
type GuideStore struct {
	mu        sync.RWMutex
	guides    map[string]domain.StudyGuide
	questions map[string][]domain.Question // by guide id
}

func NewGuideStore(guides map[string]domain.StudyGuide, questions map[string][]domain.Question) *GuideStore {
	if guides == nil {
		guides = make(map[string]domain.StudyGuide)
	}
	if questions == nil {
		questions = make(map[string][]domain.Question)
	}
	return &GuideStore{guides: guides, questions: questions}
}

func (s *GuideStore) ListGuides(_ context.Context, status domain.GuideStatus) ([]domain.StudyGuide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StudyGuide, 0, len(s.guides))
	for _, g := range s.guides {
		if status != "" && g.Status != status {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *GuideStore) GetGuide(_ context.Context, id string) (domain.StudyGuide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	guide, ok := s.guides[id]
	if !ok {
		return domain.StudyGuide{}, domain.ErrGuideNotFound
	}
	return guide, nil
}

func (s *GuideStore) GetGuideQuestions(_ context.Context, guideID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.guides[guideID]; !ok {
		return nil, domain.ErrGuideNotFound
	}
	return s.questions[guideID], nil
}

// ProgressStore is an in-memory implementation of guide.ProgressStore.
type ProgressStore struct {
	mu      sync.RWMutex
	records []domain.StudyProgress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{}
}

func (s *ProgressStore) InsertProgress(_ context.Context, progress domain.StudyProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	s.records = append(s.records, progress)
	return nil
}

func (s *ProgressStore) ListProgress(_ context.Context, guideID, userID string) ([]domain.StudyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StudyProgress, 0)
	for _, rec := range s.records {
		if rec.GuideID == guideID && rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}
