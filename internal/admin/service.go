package admin

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"training-portal/internal/auth"
	"training-portal/internal/domain"
	"training-portal/internal/quiz"
)

const tempPasswordChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

// UserDirectory is the profile surface the admin screens need beyond the
// auth state machine's collaborator contract.
type UserDirectory interface {
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	UpdateProfile(ctx context.Context, id string, changes auth.ProfileChanges) error
}

// ResultsReader lists persisted quiz results for the dashboard.
type ResultsReader interface {
	ListResults(ctx context.Context, filters domain.ResultFilters) ([]domain.QuizResult, error)
}

// CredentialResetter overwrites a user's credential out-of-band. Implemented
// by session service backends that expose an admin surface.
type CredentialResetter interface {
	ResetCredential(ctx context.Context, userID, newPassword string) error
}

// Service contains the admin use cases: user management, temp-password
// resets, and dashboard statistics.
type Service struct {
	users    UserDirectory
	results  ResultsReader
	resetter CredentialResetter
}

func NewService(users UserDirectory, results ResultsReader, resetter CredentialResetter) *Service {
	return &Service{users: users, results: results, resetter: resetter}
}

// Users lists all profiles.
func (s *Service) Users(ctx context.Context) ([]domain.Profile, error) {
	return s.users.ListProfiles(ctx)
}

// UpdateRole changes a user's role. Only super admins may modify roles; the
// actor's profile is verified, never trusted from the request.
func (s *Service) UpdateRole(ctx context.Context, actorID, userID string, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("update role: unknown role %q", role)
	}
	actor, err := s.users.GetProfile(ctx, actorID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if !actor.Role.SuperAdmin() {
		return fmt.Errorf("update role: %w", domain.ErrForbidden)
	}
	changes := auth.ProfileChanges{Role: &role}
	if err := s.users.UpdateProfile(ctx, userID, changes); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// ResetPassword overwrites the user's credential with a random temporary
// password and forces a change on next sign-in. Returns the temp password for
// the admin to hand over.
func (s *Service) ResetPassword(ctx context.Context, userID string) (string, error) {
	temp, err := tempPassword(12)
	if err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	if err := s.resetter.ResetCredential(ctx, userID, temp); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	required := true
	if err := s.users.UpdateProfile(ctx, userID, auth.ProfileChanges{PasswordChangeRequired: &required}); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	return temp, nil
}

// Stats aggregates quiz results into dashboard figures.
func (s *Service) Stats(ctx context.Context, filters domain.ResultFilters) (domain.DashboardStats, error) {
	results, err := s.results.ListResults(ctx, filters)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}

	stats := domain.DashboardStats{TotalQuizzes: len(results)}
	if len(results) == 0 {
		return stats, nil
	}

	passed := 0
	var scoreSum, timeSum float64
	for _, r := range results {
		if r.Score >= quiz.PassThreshold {
			passed++
		}
		scoreSum += r.Score
		timeSum += r.TimeTaken.Seconds()
	}
	stats.PassRate = 100 * float64(passed) / float64(len(results))
	stats.AverageScore = scoreSum / float64(len(results))
	stats.AverageTime = timeSum / float64(len(results))
	return stats, nil
}

func tempPassword(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = tempPasswordChars[int(b)%len(tempPasswordChars)]
	}
	return string(out), nil
}

// SinceFor maps a dashboard time-range keyword onto a cutoff timestamp. An
// unknown or "all" range yields the zero time.
func SinceFor(timeRange string, now time.Time) time.Time {
	switch timeRange {
	case "today":
		return now.AddDate(0, 0, -1)
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}
