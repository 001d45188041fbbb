package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"training-portal/internal/auth"
	"training-portal/internal/domain"
)

func TestBootstrapWithoutSession(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	manager.Bootstrap(context.Background())

	view := manager.View()
	if view.HasSession {
		t.Fatalf("expected no session, got %+v", view)
	}
	if !view.SessionServiceReachable || !view.ProfileServiceReachable {
		t.Fatalf("expected both services reachable, got %+v", view)
	}
}

func TestBootstrapResolvesExistingSession(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.current = &domain.Session{SubjectID: "u1", Email: "alice@example.com"}
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com", Role: domain.RoleAdmin}

	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()
	manager.Bootstrap(context.Background())

	view := manager.View()
	if !view.HasSession || view.Profile == nil {
		t.Fatalf("expected resolved session, got %+v", view)
	}
	if !view.IsAdmin || view.IsSuperAdmin {
		t.Fatalf("expected admin flags from profile, got %+v", view)
	}
}

func TestBootstrapDegradesWhenSessionCheckFails(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.currentErr = domain.ErrServiceUnreachable
	manager := auth.NewManager(sessions, newFakeProfileStore(), time.Second)
	defer manager.Close()

	manager.Bootstrap(context.Background())

	view := manager.View()
	if view.HasSession {
		t.Fatalf("expected unauthenticated view, got %+v", view)
	}
	if view.SessionServiceReachable {
		t.Fatalf("expected session service marked unreachable")
	}
}

func TestBootstrapWaitIsBounded(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.blockCurrent = true
	manager := auth.NewManager(sessions, newFakeProfileStore(), 50*time.Millisecond)
	defer manager.Close()

	start := time.Now()
	manager.Bootstrap(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("bootstrap blocked for %v", elapsed)
	}

	view := manager.View()
	if view.HasSession || view.SessionServiceReachable {
		t.Fatalf("expected degraded unauthenticated view, got %+v", view)
	}
}

func TestMissingProfileIsRepaired(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.current = &domain.Session{SubjectID: "u1", Email: "alice@example.com"}
	profiles := newFakeProfileStore()

	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()
	manager.Bootstrap(context.Background())

	view := manager.View()
	if view.Profile == nil || view.Profile.Role != domain.RoleUser {
		t.Fatalf("expected default profile, got %+v", view.Profile)
	}
	if !view.Profile.PasswordChangeRequired {
		t.Fatalf("expected repaired profile to force a password change")
	}
	stored, err := profiles.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected repaired row persisted: %v", err)
	}
	if stored.Email != "alice@example.com" {
		t.Fatalf("unexpected repaired row %+v", stored)
	}
}

func TestRepairFailureFallsBackInMemory(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.current = &domain.Session{SubjectID: "u1", Email: "alice@example.com"}
	profiles := newFakeProfileStore()
	profiles.getErr = domain.ErrServiceUnreachable
	profiles.upsertErr = domain.ErrServiceUnreachable

	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()
	manager.Bootstrap(context.Background())

	view := manager.View()
	if !view.HasSession || view.Profile == nil {
		t.Fatalf("expected session with in-memory default profile, got %+v", view)
	}
	if view.ProfileServiceReachable {
		t.Fatalf("expected profile service marked unreachable")
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.signInErr = domain.ErrInvalidCredentials
	manager := auth.NewManager(sessions, newFakeProfileStore(), time.Second)
	defer manager.Close()

	err := manager.SignIn(context.Background(), "alice@example.com", "nope")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if manager.View().HasSession {
		t.Fatalf("failed sign-in must not install a session")
	}
}

func TestSignInSetsSessionThenReconcilesProfile(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com", Role: domain.RoleSuperAdmin}
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !manager.View().HasSession {
		t.Fatalf("expected session immediately after sign-in")
	}

	waitFor(t, func() bool {
		view := manager.View()
		return view.Profile != nil && view.IsSuperAdmin
	})
}

func TestStaleReconciliationIsDiscarded(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com", Role: domain.RoleAdmin}
	gate := make(chan struct{})
	profiles.getGate = gate

	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	// Sign out while the profile read for the sign-in is still in flight.
	if err := manager.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	close(gate)

	// The late profile result must never resurrect the session.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if manager.View().HasSession {
			t.Fatalf("stale reconciliation applied after sign-out")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSignOutClearsLocalStateBeforeRemote(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com"}
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	sessions.signOutErr = domain.ErrServiceUnreachable

	err := manager.SignOut(context.Background())
	if !errors.Is(err, domain.ErrServiceUnreachable) {
		t.Fatalf("expected remote failure surfaced, got %v", err)
	}
	if manager.View().HasSession {
		t.Fatalf("local state must stay cleared despite the remote failure")
	}
}

func TestChangePasswordEnforcesPolicy(t *testing.T) {
	sessions := newFakeSessionService()
	manager := auth.NewManager(sessions, newFakeProfileStore(), time.Second)
	defer manager.Close()

	err := manager.ChangePassword(context.Background(), "current", "short")
	if !errors.Is(err, domain.ErrPasswordPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if sessions.updateCalls != 0 {
		t.Fatalf("policy failure must not touch the credential")
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	sessions.signInErr = domain.ErrInvalidCredentials

	err := manager.ChangePassword(context.Background(), "wrong", "Str0ng!pass")
	if !errors.Is(err, domain.ErrInvalidCurrentPassword) {
		t.Fatalf("expected invalid current password, got %v", err)
	}
	if sessions.updateCalls != 0 {
		t.Fatalf("re-auth failure must not touch the credential")
	}
}

func TestChangePasswordClearsForcedFlag(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com", PasswordChangeRequired: true}
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	waitFor(t, func() bool { return manager.View().Profile != nil })

	if err := manager.ChangePassword(context.Background(), "pw", "Str0ng!pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if sessions.updateCalls != 1 {
		t.Fatalf("expected one credential update, got %d", sessions.updateCalls)
	}
	view := manager.View()
	if view.PasswordChangeRequired {
		t.Fatalf("expected forced-change flag cleared, got %+v", view)
	}
	stored, _ := profiles.GetProfile(context.Background(), "u1")
	if stored.PasswordChangeRequired {
		t.Fatalf("expected stored flag cleared, got %+v", stored)
	}
}

func TestChangePasswordSucceedsWhenFlagClearFails(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com", PasswordChangeRequired: true}
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	waitFor(t, func() bool { return manager.View().Profile != nil })
	profiles.updateErr = domain.ErrServiceUnreachable

	if err := manager.ChangePassword(context.Background(), "pw", "Str0ng!pass"); err != nil {
		t.Fatalf("credential update succeeded, expected no error: %v", err)
	}
	if sessions.updateCalls != 1 {
		t.Fatalf("expected credential updated, got %d calls", sessions.updateCalls)
	}
	if manager.View().ProfileServiceReachable {
		t.Fatalf("expected profile service marked unreachable")
	}
}

func TestSignOutEventClearsView(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com"}
	manager := auth.NewManager(sessions, profiles, time.Second)
	manager.Start()
	defer manager.Close()

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	waitFor(t, func() bool { return manager.View().HasSession })

	sessions.events <- auth.SessionEvent{Type: auth.EventSignedOut}
	waitFor(t, func() bool { return !manager.View().HasSession })
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	sessions := newFakeSessionService()
	profiles := newFakeProfileStore()
	profiles.profiles["u1"] = domain.Profile{ID: "u1", Email: "alice@example.com"}
	manager := auth.NewManager(sessions, profiles, time.Second)
	defer manager.Close()

	updates, cancel := manager.Subscribe()
	defer cancel()

	initial := <-updates
	if initial.HasSession {
		t.Fatalf("expected unauthenticated initial snapshot, got %+v", initial)
	}

	if err := manager.SignIn(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case view := <-updates:
			if view.HasSession {
				return
			}
		case <-deadline:
			t.Fatalf("no authenticated snapshot delivered")
		}
	}
}

func TestCloseBlocksLateApplies(t *testing.T) {
	sessions := newFakeSessionService()
	sessions.current = &domain.Session{SubjectID: "u1", Email: "alice@example.com"}
	manager := auth.NewManager(sessions, newFakeProfileStore(), time.Second)

	manager.Close()
	manager.Bootstrap(context.Background())

	if manager.View().HasSession {
		t.Fatalf("bootstrap after close must not apply")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// fakeSessionService answers with a session for subject u1 unless an error is
// injected.
type fakeSessionService struct {
	mu           sync.Mutex
	events       chan auth.SessionEvent
	current      *domain.Session
	currentErr   error
	blockCurrent bool
	signInErr    error
	signOutErr   error
	updateErr    error
	updateCalls  int
}

func newFakeSessionService() *fakeSessionService {
	return &fakeSessionService{events: make(chan auth.SessionEvent, 16)}
}

func (f *fakeSessionService) SignInWithPassword(_ context.Context, email, _ string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return domain.Session{}, f.signInErr
	}
	session := domain.Session{SubjectID: "u1", Email: email, ExpiresAt: time.Now().Add(time.Hour)}
	f.current = &session
	return session, nil
}

func (f *fakeSessionService) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.current = nil
	return nil
}

func (f *fakeSessionService) GetCurrentSession(ctx context.Context) (*domain.Session, error) {
	f.mu.Lock()
	block := f.blockCurrent
	current := f.current
	currentErr := f.currentErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if currentErr != nil {
		return nil, currentErr
	}
	return current, nil
}

func (f *fakeSessionService) UpdateCredential(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls++
	return nil
}

func (f *fakeSessionService) Events() <-chan auth.SessionEvent {
	return f.events
}

// fakeProfileStore wraps a map with injectable errors and an optional gate
// that delays reads for interleaving tests.
type fakeProfileStore struct {
	mu        sync.Mutex
	profiles  map[string]domain.Profile
	getErr    error
	upsertErr error
	updateErr error
	getGate   chan struct{}
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]domain.Profile)}
}

func (f *fakeProfileStore) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	f.mu.Lock()
	gate := f.getGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Profile{}, f.getErr
	}
	profile, ok := f.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (f *fakeProfileStore) UpsertProfile(_ context.Context, profile domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeProfileStore) UpdateProfile(_ context.Context, id string, changes auth.ProfileChanges) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	profile, ok := f.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	if changes.Role != nil {
		profile.Role = *changes.Role
	}
	if changes.PasswordChangeRequired != nil {
		profile.PasswordChangeRequired = *changes.PasswordChangeRequired
	}
	f.profiles[id] = profile
	return nil
}

func (f *fakeProfileStore) Ping(context.Context) bool { return true }
