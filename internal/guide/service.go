package guide

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"training-portal/internal/domain"
)

// GuideStore abstracts study-guide content.
type GuideStore interface {
	ListGuides(ctx context.Context, status domain.GuideStatus) ([]domain.StudyGuide, error)
	GetGuide(ctx context.Context, id string) (domain.StudyGuide, error)
	GetGuideQuestions(ctx context.Context, guideID string) ([]domain.Question, error)
}

// ProgressStore records per-question study progress.
type ProgressStore interface {
	InsertProgress(ctx context.Context, progress domain.StudyProgress) error
	ListProgress(ctx context.Context, guideID, userID string) ([]domain.StudyProgress, error)
}

// Service contains the study-guide use cases: browsing published guides and
// tracking practice answers.
type Service struct {
	guides   GuideStore
	progress ProgressStore
	now      func() time.Time
}

func NewService(guides GuideStore, progress ProgressStore) *Service {
	return NewServiceWithClock(guides, progress, time.Now)
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(guides GuideStore, progress ProgressStore, now func() time.Time) *Service {
	return &Service{guides: guides, progress: progress, now: now}
}

// Guides lists published study guides only.
func (s *Service) Guides(ctx context.Context) ([]domain.StudyGuide, error) {
	return s.guides.ListGuides(ctx, domain.GuidePublished)
}

// Guide fetches a single guide by id.
func (s *Service) Guide(ctx context.Context, id string) (domain.StudyGuide, error) {
	return s.guides.GetGuide(ctx, id)
}

// Questions fetches the guide's question set, options pre-sorted by display order.
func (s *Service) Questions(ctx context.Context, guideID string) ([]domain.Question, error) {
	return s.guides.GetGuideQuestions(ctx, guideID)
}

// Categories returns the distinct question categories in a guide, in first-seen order.
func (s *Service) Categories(ctx context.Context, guideID string) ([]string, error) {
	questions, err := s.guides.GetGuideQuestions(ctx, guideID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, q := range questions {
		if q.Category == "" {
			continue
		}
		if _, ok := seen[q.Category]; ok {
			continue
		}
		seen[q.Category] = struct{}{}
		categories = append(categories, q.Category)
	}
	return categories, nil
}

// RecordAnswer judges a practice answer with the exact-set rule and persists
// a progress record. Returns whether the answer was correct.
func (s *Service) RecordAnswer(ctx context.Context, guideID, userID string, questionIndex int, selected []int) (bool, error) {
	questions, err := s.guides.GetGuideQuestions(ctx, guideID)
	if err != nil {
		return false, fmt.Errorf("record answer: %w", err)
	}
	if questionIndex < 0 || questionIndex >= len(questions) {
		return false, fmt.Errorf("record answer: question index %d out of range", questionIndex)
	}
	question := questions[questionIndex]
	// Callers send indices in any order; judging is by set.
	selection := append([]int(nil), selected...)
	sort.Ints(selection)
	correct := question.CorrectSelection(selection)

	progress := domain.StudyProgress{
		ID:         uuid.NewString(),
		GuideID:    guideID,
		UserID:     userID,
		QuestionID: question.ID,
		Correct:    correct,
		CreatedAt:  s.now(),
	}
	if err := s.progress.InsertProgress(ctx, progress); err != nil {
		return correct, fmt.Errorf("record answer: %w", err)
	}
	return correct, nil
}

// Progress lists the user's recorded answers for a guide.
func (s *Service) Progress(ctx context.Context, guideID, userID string) ([]domain.StudyProgress, error) {
	return s.progress.ListProgress(ctx, guideID, userID)
}
