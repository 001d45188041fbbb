package quiz

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"training-portal/internal/domain"
)

// State tracks an attempt through its lifecycle. Submitted is terminal: an
// attempt cannot be resumed or resubmitted.
type State int

const (
	AccessPending State = iota
	AccessValidated
	InProgress
	Submitted
)

func (s State) String() string {
	switch s {
	case AccessPending:
		return "access_pending"
	case AccessValidated:
		return "access_validated"
	case InProgress:
		return "in_progress"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Attempt is the single in-progress run against one access grant. The HTTP
// surface hands the same attempt to concurrent requests, so all answer and
// lifecycle state is guarded by the attempt's own lock.
type Attempt struct {
	grant     domain.QuizAccessGrant
	questions []domain.Question
	startedAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	state      State
	submitting bool
	answers    []domain.AnswerState
}

func newAttempt(grant domain.QuizAccessGrant, questions []domain.Question, now func() time.Time) *Attempt {
	answers := make([]domain.AnswerState, len(questions))
	for i := range answers {
		answers[i] = domain.AnswerState{QuestionIndex: i, SelectedIndices: nil}
	}
	return &Attempt{
		state:     InProgress,
		grant:     grant,
		questions: questions,
		answers:   answers,
		startedAt: now(),
		now:       now,
	}
}

// State returns the attempt's lifecycle state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Grant returns the validated access grant backing the attempt.
func (a *Attempt) Grant() domain.QuizAccessGrant { return a.grant }

// Questions returns the loaded question set, options pre-sorted by display order.
func (a *Attempt) Questions() []domain.Question { return a.questions }

// Select records an option choice. Multi-select questions toggle membership
// in the selected set, kept sorted ascending; single-select and true/false
// questions replace the set with a singleton.
func (a *Attempt) Select(questionIndex, optionIndex int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != InProgress || a.submitting {
		return fmt.Errorf("select option: %w", domain.ErrAttemptSubmitted)
	}
	if questionIndex < 0 || questionIndex >= len(a.questions) {
		return fmt.Errorf("select option: question index %d out of range", questionIndex)
	}
	question := a.questions[questionIndex]
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return fmt.Errorf("select option: option index %d out of range", optionIndex)
	}

	answer := &a.answers[questionIndex]
	if !question.Type.MultiSelect() {
		answer.SelectedIndices = []int{optionIndex}
		return nil
	}

	for i, idx := range answer.SelectedIndices {
		if idx == optionIndex {
			answer.SelectedIndices = append(answer.SelectedIndices[:i], answer.SelectedIndices[i+1:]...)
			return nil
		}
	}
	answer.SelectedIndices = append(answer.SelectedIndices, optionIndex)
	sort.Ints(answer.SelectedIndices)
	return nil
}

// Answers returns a copy of the recorded answer states, one per question.
func (a *Attempt) Answers() []domain.AnswerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyAnswers(a.answers)
}

func copyAnswers(src []domain.AnswerState) []domain.AnswerState {
	answers := make([]domain.AnswerState, len(src))
	for i, ans := range src {
		copied := ans
		copied.SelectedIndices = append([]int(nil), ans.SelectedIndices...)
		answers[i] = copied
	}
	return answers
}

// submission is the snapshot a submit runs against. Taking it marks the
// attempt as having a submit in flight, so only one caller at a time can
// carry an attempt toward Submitted.
type submission struct {
	score   float64
	answers []domain.AnswerState
	elapsed time.Duration
}

func (a *Attempt) beginSubmit() (submission, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != InProgress || a.submitting {
		return submission{}, domain.ErrAttemptSubmitted
	}
	a.submitting = true
	answers := copyAnswers(a.answers)
	return submission{
		score:   Score(a.questions, answers),
		answers: answers,
		elapsed: a.now().Sub(a.startedAt),
	}, nil
}

// abortSubmit reopens the attempt after a failed result write.
func (a *Attempt) abortSubmit() {
	a.mu.Lock()
	a.submitting = false
	a.mu.Unlock()
}

// finishSubmit makes the attempt terminal once the result is persisted.
func (a *Attempt) finishSubmit() {
	a.mu.Lock()
	a.state = Submitted
	a.submitting = false
	a.mu.Unlock()
}

// Score computes the percentage of exactly-correct answers. An answer is
// correct iff its selected set equals the question's correct set. Questions
// with no recorded answer count as wrong, never as an exclusion from the
// denominator.
func Score(questions []domain.Question, answers []domain.AnswerState) float64 {
	if len(questions) == 0 {
		return 0
	}
	correct := 0
	for i, question := range questions {
		if i >= len(answers) {
			continue
		}
		if len(answers[i].SelectedIndices) == 0 {
			continue
		}
		if question.CorrectSelection(answers[i].SelectedIndices) {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(questions))
}

// Score computes the attempt's current score.
func (a *Attempt) Score() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Score(a.questions, a.answers)
}
