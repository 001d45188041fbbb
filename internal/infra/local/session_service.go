// Package local provides an in-process SessionService used for development
// and tests. It stands in for the hosted auth backend: bcrypt credentials,
// HS256-signed session tokens, and ordered session-change events.
package local

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"training-portal/internal/auth"
	"training-portal/internal/domain"
)

type credential struct {
	subjectID    string
	email        string
	passwordHash []byte
}

// StoredCredential is the persisted form of a credential.
type StoredCredential struct {
	SubjectID    string
	Email        string
	PasswordHash []byte
}

// CredentialStore persists credentials across restarts. Saves are best
// effort: a failed write is logged and the in-memory state stays ahead.
type CredentialStore interface {
	SaveCredential(ctx context.Context, cred StoredCredential) error
	ListCredentials(ctx context.Context) ([]StoredCredential, error)
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionService implements auth.SessionService against in-memory state.
type SessionService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	byEmail map[string]*credential
	byID    map[string]*credential
	current *domain.Session
	store   CredentialStore

	events chan auth.SessionEvent
}

func NewSessionService(secret, issuer string, ttl time.Duration) *SessionService {
	return NewSessionServiceWithClock(secret, issuer, ttl, time.Now)
}

// NewSessionServiceWithClock is test-only for deterministic expiry.
func NewSessionServiceWithClock(secret, issuer string, ttl time.Duration, now func() time.Time) *SessionService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionService{
		secret:  []byte(secret),
		issuer:  issuer,
		ttl:     ttl,
		now:     now,
		byEmail: make(map[string]*credential),
		byID:    make(map[string]*credential),
		events:  make(chan auth.SessionEvent, 16),
	}
}

// Persist attaches a credential store and loads every stored credential
// into memory. Call before serving traffic.
func (s *SessionService) Persist(ctx context.Context, store CredentialStore) error {
	stored, err := store.ListCredentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
	for _, sc := range stored {
		cred := &credential{subjectID: sc.SubjectID, email: sc.Email, passwordHash: sc.PasswordHash}
		s.byEmail[cred.email] = cred
		s.byID[cred.subjectID] = cred
	}
	return nil
}

// Register creates a credential and returns the subject id. Used by dev
// seeding and the provisioning CLI; not part of the SessionService contract.
func (s *SessionService) Register(email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byEmail[email]; ok {
		existing.passwordHash = hash
		s.saveLocked(existing)
		return existing.subjectID, nil
	}
	cred := &credential{subjectID: uuid.NewString(), email: email, passwordHash: hash}
	s.byEmail[email] = cred
	s.byID[cred.subjectID] = cred
	s.saveLocked(cred)
	return cred.subjectID, nil
}

// SignInWithPassword verifies the credential pair and installs a fresh
// session, emitting a signed_in event.
func (s *SessionService) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byEmail[email]
	if !ok {
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(cred.passwordHash, []byte(password)); err != nil {
		return domain.Session{}, domain.ErrInvalidCredentials
	}

	session, err := s.issueLocked(cred)
	if err != nil {
		return domain.Session{}, err
	}
	s.current = &session
	s.emit(auth.SessionEvent{Type: auth.EventSignedIn, Session: sessionCopy(&session)})
	return session, nil
}

// SignOut destroys the current session and emits a signed_out event.
func (s *SessionService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.emit(auth.SessionEvent{Type: auth.EventSignedOut})
	return nil
}

// GetCurrentSession returns the active session, or nil once it has expired.
func (s *SessionService) GetCurrentSession(ctx context.Context) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.now().After(s.current.ExpiresAt) {
		return nil, nil
	}
	return sessionCopy(s.current), nil
}

// UpdateCredential rehashes the current subject's password and refreshes the
// session token, emitting a token_refreshed event.
func (s *SessionService) UpdateCredential(ctx context.Context, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.ErrInvalidCredentials
	}
	cred, ok := s.byID[s.current.SubjectID]
	if !ok {
		return domain.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	cred.passwordHash = hash
	s.saveLocked(cred)

	session, err := s.issueLocked(cred)
	if err != nil {
		return err
	}
	s.current = &session
	s.emit(auth.SessionEvent{Type: auth.EventTokenRefreshed, Session: sessionCopy(&session)})
	return nil
}

// ResetCredential overwrites a user's password by subject id. Admin surface,
// no event: the target user's session is unaffected until next sign-in.
func (s *SessionService) ResetCredential(ctx context.Context, userID, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("reset credential: %w", domain.ErrProfileNotFound)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("reset credential: %w", err)
	}
	cred.passwordHash = hash
	s.saveLocked(cred)
	return nil
}

// Events returns the ordered session-change subscription.
func (s *SessionService) Events() <-chan auth.SessionEvent {
	return s.events
}

// ParseToken validates a session token and returns its subject and email.
func (s *SessionService) ParseToken(tokenString string) (subjectID, email string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, claims.Email, nil
}

func (s *SessionService) issueLocked(cred *credential) (domain.Session, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := sessionClaims{
		Email: cred.email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.subjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sign session token: %w", err)
	}
	return domain.Session{
		SubjectID: cred.subjectID,
		Email:     cred.email,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// emit never blocks the caller; when the subscriber lags, the oldest queued
// event is dropped in favor of the new one.
func (s *SessionService) emit(ev auth.SessionEvent) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		s.events <- ev
	}
}

func (s *SessionService) saveLocked(cred *credential) {
	if s.store == nil {
		return
	}
	err := s.store.SaveCredential(context.Background(), StoredCredential{
		SubjectID:    cred.subjectID,
		Email:        cred.email,
		PasswordHash: cred.passwordHash,
	})
	if err != nil {
		log.Printf("save credential for %s: %v", cred.email, err)
	}
}

func sessionCopy(session *domain.Session) *domain.Session {
	copied := *session
	return &copied
}
