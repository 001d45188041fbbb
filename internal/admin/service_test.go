package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"training-portal/internal/admin"
	"training-portal/internal/domain"
	"training-portal/internal/infra/memory"
)

func newTestService(t *testing.T) (*admin.Service, *memory.ProfileStore, *memory.ResultStore, *recordingResetter) {
	t.Helper()
	profiles := memory.NewProfileStore()
	results := memory.NewResultStore()
	resetter := &recordingResetter{}

	ctx := context.Background()
	seed := []domain.Profile{
		{ID: "u1", Email: "root@example.com", Role: domain.RoleSuperAdmin},
		{ID: "u2", Email: "admin@example.com", Role: domain.RoleAdmin},
		{ID: "u3", Email: "user@example.com", Role: domain.RoleUser},
	}
	for _, p := range seed {
		if err := profiles.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
	return admin.NewService(profiles, results, resetter), profiles, results, resetter
}

func TestUpdateRoleRequiresSuperAdmin(t *testing.T) {
	ctx := context.Background()
	service, profiles, _, _ := newTestService(t)

	err := service.UpdateRole(ctx, "u2", "u3", domain.RoleAdmin)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for a plain admin actor, got %v", err)
	}

	if err := service.UpdateRole(ctx, "u1", "u3", domain.RoleAdmin); err != nil {
		t.Fatalf("super admin update failed: %v", err)
	}
	updated, _ := profiles.GetProfile(ctx, "u3")
	if updated.Role != domain.RoleAdmin {
		t.Fatalf("expected role updated, got %s", updated.Role)
	}
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	service, _, _, _ := newTestService(t)

	if err := service.UpdateRole(context.Background(), "u1", "u3", domain.Role("owner")); err == nil {
		t.Fatalf("expected unknown-role error")
	}
}

func TestUpdateRoleUnknownActor(t *testing.T) {
	service, _, _, _ := newTestService(t)

	err := service.UpdateRole(context.Background(), "ghost", "u3", domain.RoleAdmin)
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected profile-not-found for unknown actor, got %v", err)
	}
}

func TestResetPasswordForcesChange(t *testing.T) {
	ctx := context.Background()
	service, profiles, _, resetter := newTestService(t)

	temp, err := service.ResetPassword(ctx, "u3")
	if err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if len(temp) != 12 {
		t.Fatalf("expected a 12-char temp password, got %q", temp)
	}
	if resetter.userID != "u3" || resetter.password != temp {
		t.Fatalf("expected credential overwritten with temp password, got %+v", resetter)
	}
	profile, _ := profiles.GetProfile(ctx, "u3")
	if !profile.PasswordChangeRequired {
		t.Fatalf("expected forced password change after reset")
	}
}

func TestResetPasswordPropagatesResetterFailure(t *testing.T) {
	service, _, _, resetter := newTestService(t)
	resetter.err = errors.New("backend down")

	if _, err := service.ResetPassword(context.Background(), "u3"); err == nil {
		t.Fatalf("expected resetter failure surfaced")
	}
}

func TestStatsAggregation(t *testing.T) {
	ctx := context.Background()
	service, _, results, _ := newTestService(t)

	now := time.Now()
	seed := []domain.QuizResult{
		{QuizID: "quiz-1", Score: 90, Verdict: domain.VerdictPass, TimeTaken: 60 * time.Second, CompletedAt: now, Attribution: domain.Attribution{LDAP: "alice"}},
		{QuizID: "quiz-1", Score: 80, Verdict: domain.VerdictPass, TimeTaken: 120 * time.Second, CompletedAt: now, Attribution: domain.Attribution{LDAP: "bob"}},
		{QuizID: "quiz-1", Score: 40, Verdict: domain.VerdictFail, TimeTaken: 30 * time.Second, CompletedAt: now.AddDate(0, -2, 0), Attribution: domain.Attribution{LDAP: "alice"}},
	}
	for _, r := range seed {
		if _, err := results.InsertResult(ctx, r); err != nil {
			t.Fatalf("seed result: %v", err)
		}
	}

	stats, err := service.Stats(ctx, domain.ResultFilters{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzes != 3 {
		t.Fatalf("expected 3 results, got %d", stats.TotalQuizzes)
	}
	if stats.PassRate != 100*2.0/3.0 {
		t.Fatalf("unexpected pass rate %v", stats.PassRate)
	}
	if stats.AverageScore != 70 {
		t.Fatalf("unexpected average score %v", stats.AverageScore)
	}
	if stats.AverageTime != 70 {
		t.Fatalf("unexpected average time %v", stats.AverageTime)
	}
}

func TestStatsFilters(t *testing.T) {
	ctx := context.Background()
	service, _, results, _ := newTestService(t)

	now := time.Now()
	old := now.AddDate(0, -2, 0)
	for _, r := range []domain.QuizResult{
		{QuizID: "quiz-1", Score: 90, CompletedAt: now, Attribution: domain.Attribution{LDAP: "Alice"}},
		{QuizID: "quiz-1", Score: 50, CompletedAt: old, Attribution: domain.Attribution{LDAP: "alice"}},
		{QuizID: "quiz-1", Score: 70, CompletedAt: now, Attribution: domain.Attribution{LDAP: "bob"}},
	} {
		if _, err := results.InsertResult(ctx, r); err != nil {
			t.Fatalf("seed result: %v", err)
		}
	}

	stats, err := service.Stats(ctx, domain.ResultFilters{
		Since: admin.SinceFor("month", now),
		LDAP:  "ALICE",
	})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzes != 1 || stats.AverageScore != 90 {
		t.Fatalf("expected only alice's recent result, got %+v", stats)
	}
}

func TestStatsEmpty(t *testing.T) {
	service, _, _, _ := newTestService(t)

	stats, err := service.Stats(context.Background(), domain.ResultFilters{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzes != 0 || stats.PassRate != 0 || stats.AverageScore != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestSinceFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		timeRange string
		want      time.Time
	}{
		{"today", now.AddDate(0, 0, -1)},
		{"week", now.AddDate(0, 0, -7)},
		{"month", now.AddDate(0, -1, 0)},
		{"year", now.AddDate(-1, 0, 0)},
		{"all", time.Time{}},
		{"", time.Time{}},
	}
	for _, tc := range cases {
		if got := admin.SinceFor(tc.timeRange, now); !got.Equal(tc.want) {
			t.Fatalf("SinceFor(%q) = %v, want %v", tc.timeRange, got, tc.want)
		}
	}
}

type recordingResetter struct {
	userID   string
	password string
	err      error
}

func (r *recordingResetter) ResetCredential(_ context.Context, userID, newPassword string) error {
	if r.err != nil {
		return r.err
	}
	r.userID = userID
	r.password = newPassword
	return nil
}
