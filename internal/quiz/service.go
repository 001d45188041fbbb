package quiz

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"training-portal/internal/domain"
)

// PassThreshold is the fixed passing score. The verdict comparison uses the
// unrounded score.
const PassThreshold = 80.0

// GrantStore abstracts the quiz-access table.
type GrantStore interface {
	GetGrantByToken(ctx context.Context, token string) (domain.QuizAccessGrant, error)
	MarkUsed(ctx context.Context, grantID string, usedAt time.Time) error
}

// QuestionRepository loads quiz content (from cache/backing store), options
// pre-sorted by display order.
type QuestionRepository interface {
	GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// ResultStore persists immutable quiz results.
type ResultStore interface {
	InsertResult(ctx context.Context, result domain.QuizResult) (domain.QuizResult, error)
}

// CertificateGenerator produces a certificate URL for a passing result.
// Best-effort: failures are swallowed by the caller.
type CertificateGenerator interface {
	Generate(ctx context.Context, resultID string) (string, error)
}

// Service contains the quiz evaluation use cases.
type Service struct {
	grants    GrantStore
	questions QuestionRepository
	results   ResultStore
	certs     CertificateGenerator
	now       func() time.Time
}

func NewService(grants GrantStore, questions QuestionRepository, results ResultStore, certs CertificateGenerator) *Service {
	return NewServiceWithClock(grants, questions, results, certs, time.Now)
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(grants GrantStore, questions QuestionRepository, results ResultStore, certs CertificateGenerator, now func() time.Time) *Service {
	return &Service{grants: grants, questions: questions, results: results, certs: certs, now: now}
}

// ValidateAccess checks a grant token without mutating it. It fails when no
// grant matches, when the grant is past expiration, or when used_at is
// already set; each condition fails regardless of the others. Usage is
// committed separately on submission.
func (s *Service) ValidateAccess(ctx context.Context, token string) (domain.QuizAccessGrant, error) {
	grant, err := s.grants.GetGrantByToken(ctx, token)
	if err != nil {
		return domain.QuizAccessGrant{}, fmt.Errorf("validate access: %w", err)
	}
	if grant.UsedAt != nil || s.now().After(grant.Expiration) {
		return domain.QuizAccessGrant{}, fmt.Errorf("validate access: %w", domain.ErrAccessExpiredOrUsed)
	}
	return grant, nil
}

// StartAttempt loads the question set for a validated grant and opens the
// attempt.
func (s *Service) StartAttempt(ctx context.Context, grant domain.QuizAccessGrant) (*Attempt, error) {
	questions, err := s.questions.GetQuestions(ctx, grant.QuizID)
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	return newAttempt(grant, questions, s.now), nil
}

// Submit scores the attempt, persists the result, and commits grant usage.
// Certificate generation on a pass is best-effort and never aborts the
// submission. Result persistence failure IS fatal and leaves the attempt
// resubmittable so the user can retry manually. Grant-commit failure after a
// persisted result is logged and accepted as a degraded outcome.
func (s *Service) Submit(ctx context.Context, attempt *Attempt, attribution domain.Attribution) (domain.QuizResult, error) {
	// beginSubmit reserves the attempt: a concurrent submit against the same
	// attempt is rejected here, before anything is scored or persisted.
	sub, err := attempt.beginSubmit()
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("submit: %w", err)
	}

	verdict := domain.VerdictFail
	if sub.score >= PassThreshold {
		verdict = domain.VerdictPass
	}

	result := domain.QuizResult{
		ID:          uuid.NewString(),
		QuizID:      attempt.Grant().QuizID,
		Attribution: fillAttribution(attribution),
		Score:       sub.score,
		Verdict:     verdict,
		Answers:     sub.answers,
		TimeTaken:   sub.elapsed,
		CompletedAt: s.now(),
	}

	if verdict == domain.VerdictPass {
		url, err := s.certs.Generate(ctx, result.ID)
		if err != nil {
			log.Printf("quiz: certificate generation for %s failed: %v", result.ID, err)
		} else {
			result.CertificateURL = url
		}
	}

	stored, err := s.results.InsertResult(ctx, result)
	if err != nil {
		attempt.abortSubmit()
		return domain.QuizResult{}, fmt.Errorf("submit: %w: %v", domain.ErrSubmissionFailed, err)
	}
	attempt.finishSubmit()

	if err := s.grants.MarkUsed(ctx, attempt.Grant().ID, s.now()); err != nil {
		// The user already completed the quiz; losing the one-shot guarantee
		// here is accepted rather than failing the submission.
		log.Printf("quiz: marking grant %s used failed: %v", attempt.Grant().ID, err)
	}
	return stored, nil
}

func fillAttribution(a domain.Attribution) domain.Attribution {
	if a.LDAP == "" {
		a.LDAP = "Anonymous"
	}
	if a.Supervisor == "" {
		a.Supervisor = "Unknown"
	}
	if a.Market == "" {
		a.Market = "Unknown"
	}
	return a
}
