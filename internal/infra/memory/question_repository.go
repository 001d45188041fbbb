package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"training-portal/internal/domain"
)

// QuestionLoader fetches question sets from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionRepository memoizes question sets in process with a fixed TTL.
// Cold lookups collapse through singleflight, so a set is loaded once no
// matter how many attempts start at the same moment.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu      sync.RWMutex
	entries map[string]questionEntry
}

type questionEntry struct {
	questions []domain.Question
	loadedAt  time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]questionEntry),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if questions, ok := r.fresh(quizID); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// A concurrent caller may have filled the entry while this one
		// waited for the flight.
		if questions, ok := r.fresh(quizID); ok {
			return questions, nil
		}
		questions, err := r.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[quizID] = questionEntry{questions: questions, loadedAt: r.clock()}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) fresh(quizID string) ([]domain.Question, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[quizID]
	if !ok || r.clock().Sub(entry.loadedAt) >= r.ttl {
		return nil, false
	}
	return entry.questions, true
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful
// for tests/demos).
type StaticQuestionLoader struct {
	sets map[string][]domain.Question
}

func NewStaticQuestionLoader(sets map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	if questions, ok := l.sets[quizID]; ok {
		return questions, nil
	}
	return nil, domain.ErrQuizNotFound
}
