package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"training-portal/internal/auth"
	"training-portal/internal/domain"
)

func newTestSessions(t *testing.T) *SessionService {
	t.Helper()
	sessions := NewSessionService("test-secret", "training-portal", time.Hour)
	if _, err := sessions.Register("alice@example.com", "Str0ng!pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return sessions
}

func TestSignInIssuesSessionAndEvent(t *testing.T) {
	sessions := newTestSessions(t)

	session, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.Token == "" || session.SubjectID == "" {
		t.Fatalf("incomplete session %+v", session)
	}

	select {
	case ev := <-sessions.Events():
		if ev.Type != auth.EventSignedIn || ev.Session == nil {
			t.Fatalf("expected signed_in event, got %+v", ev)
		}
	default:
		t.Fatalf("expected a queued event")
	}

	subject, email, err := sessions.ParseToken(session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if subject != session.SubjectID || email != "alice@example.com" {
		t.Fatalf("token claims mismatch: %s %s", subject, email)
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	sessions := newTestSessions(t)

	_, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = sessions.SignInWithPassword(context.Background(), "nobody@example.com", "Str0ng!pass")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown account must look identical: %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	current := time.Now()
	sessions := NewSessionServiceWithClock("test-secret", "training-portal", time.Hour, func() time.Time { return current })
	if _, err := sessions.Register("alice@example.com", "Str0ng!pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	session, err := sessions.GetCurrentSession(context.Background())
	if err != nil || session == nil {
		t.Fatalf("expected an active session, got %v %v", session, err)
	}

	current = current.Add(2 * time.Hour)
	session, err = sessions.GetCurrentSession(context.Background())
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if session != nil {
		t.Fatalf("expired session must not be returned")
	}
}

func TestUpdateCredentialReissuesToken(t *testing.T) {
	sessions := newTestSessions(t)
	first, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	drain(sessions)

	if err := sessions.UpdateCredential(context.Background(), "N3w!passwd"); err != nil {
		t.Fatalf("update credential: %v", err)
	}

	select {
	case ev := <-sessions.Events():
		if ev.Type != auth.EventTokenRefreshed || ev.Session == nil || ev.Session.Token == first.Token {
			t.Fatalf("expected a refreshed token event, got %+v", ev)
		}
	default:
		t.Fatalf("expected a refresh event")
	}

	if _, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "N3w!passwd"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetCredentialEmitsNoEvent(t *testing.T) {
	sessions := newTestSessions(t)
	subjectID, _ := sessions.Register("bob@example.com", "Str0ng!pass")

	if err := sessions.ResetCredential(context.Background(), subjectID, "T3mp!pass"); err != nil {
		t.Fatalf("reset credential: %v", err)
	}
	select {
	case ev := <-sessions.Events():
		t.Fatalf("admin reset must not emit events, got %+v", ev)
	default:
	}

	if _, err := sessions.SignInWithPassword(context.Background(), "bob@example.com", "T3mp!pass"); err != nil {
		t.Fatalf("temp password rejected: %v", err)
	}
}

func TestResetCredentialUnknownUser(t *testing.T) {
	sessions := newTestSessions(t)

	err := sessions.ResetCredential(context.Background(), "missing", "T3mp!pass")
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected profile-not-found, got %v", err)
	}
}

func TestEmitDropsOldestWhenFull(t *testing.T) {
	sessions := newTestSessions(t)
	// Overflow the event buffer; sign-ins must never block.
	for i := 0; i < 40; i++ {
		if _, err := sessions.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pass"); err != nil {
			t.Fatalf("sign in %d: %v", i, err)
		}
	}
	drain(sessions)
}

func TestPersistLoadsAndSavesCredentials(t *testing.T) {
	store := &mapCredentialStore{creds: make(map[string]StoredCredential)}

	first := NewSessionService("test-secret", "training-portal", time.Hour)
	if err := first.Persist(context.Background(), store); err != nil {
		t.Fatalf("persist: %v", err)
	}
	subjectID, err := first.Register("alice@example.com", "Str0ng!pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := store.creds[subjectID]; !ok {
		t.Fatalf("expected credential persisted on register")
	}

	// A fresh service loading the same store accepts the credential.
	second := NewSessionService("test-secret", "training-portal", time.Hour)
	if err := second.Persist(context.Background(), store); err != nil {
		t.Fatalf("persist: %v", err)
	}
	session, err := second.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pass")
	if err != nil {
		t.Fatalf("sign in after reload: %v", err)
	}
	if session.SubjectID != subjectID {
		t.Fatalf("subject id changed across restart: %s vs %s", session.SubjectID, subjectID)
	}
}

func drain(s *SessionService) {
	for {
		select {
		case <-s.Events():
		default:
			return
		}
	}
}

type mapCredentialStore struct {
	mu    sync.Mutex
	creds map[string]StoredCredential
}

func (s *mapCredentialStore) SaveCredential(_ context.Context, cred StoredCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.SubjectID] = cred
	return nil
}

func (s *mapCredentialStore) ListCredentials(context.Context) ([]StoredCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredCredential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}
