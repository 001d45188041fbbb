package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"training-portal/internal/domain"
)

// EventType labels a session-change notification.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
)

// SessionEvent is delivered by the session service subscription. Session is
// nil for sign-out events.
type SessionEvent struct {
	Type    EventType
	Session *domain.Session
}

// SessionService is the hosted authentication collaborator. Implementations
// classify failures as domain.ErrInvalidCredentials vs domain.ErrServiceUnreachable.
type SessionService interface {
	SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error)
	SignOut(ctx context.Context) error
	GetCurrentSession(ctx context.Context) (*domain.Session, error)
	UpdateCredential(ctx context.Context, newPassword string) error
	Events() <-chan SessionEvent
}

// ProfileChanges is a partial profile update. Nil fields are left untouched.
type ProfileChanges struct {
	Role                   *domain.Role
	PasswordChangeRequired *bool
}

// ProfileStore is the hosted relational collaborator holding profile rows.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
	UpsertProfile(ctx context.Context, profile domain.Profile) error
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges) error
	Ping(ctx context.Context) bool
}

// Manager reconciles session-change events and profile reads into a single
// AuthorizationView. It owns the view exclusively; consumers read snapshots.
//
// Events are consumed by one goroutine in arrival order. Every reconciliation
// is tagged with the triggering event's sequence, and a result only applies
// if no later-triggered reconciliation has applied first.
type Manager struct {
	sessions      SessionService
	profiles      ProfileStore
	bootstrapWait time.Duration
	now           func() time.Time

	seq atomic.Uint64

	mu          sync.RWMutex
	view        domain.AuthorizationView
	session     *domain.Session
	appliedSeq  uint64
	subscribers map[chan domain.AuthorizationView]struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager builds a manager in the Uninitialized state. Call Start to
// consume session events and Bootstrap to resolve any existing session.
func NewManager(sessions SessionService, profiles ProfileStore, bootstrapWait time.Duration) *Manager {
	return NewManagerWithClock(sessions, profiles, bootstrapWait, time.Now)
}

// NewManagerWithClock is test-only for deterministic timestamps.
func NewManagerWithClock(sessions SessionService, profiles ProfileStore, bootstrapWait time.Duration, now func() time.Time) *Manager {
	if bootstrapWait <= 0 {
		bootstrapWait = 3 * time.Second
	}
	return &Manager{
		sessions:      sessions,
		profiles:      profiles,
		bootstrapWait: bootstrapWait,
		now:           now,
		view:          unauthenticatedView(),
		subscribers:   make(map[chan domain.AuthorizationView]struct{}),
		done:          make(chan struct{}),
	}
}

func unauthenticatedView() domain.AuthorizationView {
	return domain.AuthorizationView{
		SessionServiceReachable: true,
		ProfileServiceReachable: true,
	}
}

// Start launches the event consumer. Events are processed strictly in
// delivery order; each triggers a reconciliation.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		events := m.sessions.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				m.handleEvent(ev)
			case <-m.done:
				return
			}
		}
	}()
}

// Close stops the consumer and guarantees no in-flight reconciliation applies
// its result afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Manager) handleEvent(ev SessionEvent) {
	seq := m.seq.Add(1)
	if ev.Session == nil || ev.Type == EventSignedOut {
		m.apply(unauthenticatedView(), nil, seq)
		return
	}
	m.reconcile(context.Background(), ev.Session, seq)
}

// Bootstrap resolves any pre-existing session at process start. The wait is
// bounded: past the deadline the manager degrades to an unauthenticated view
// with SessionServiceReachable=false rather than blocking the UI. This is a
// timeout, not a retry.
func (m *Manager) Bootstrap(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.bootstrapWait)
	defer cancel()

	seq := m.seq.Add(1)
	session, err := m.sessions.GetCurrentSession(ctx)
	if err != nil {
		log.Printf("auth: bootstrap session check failed: %v", err)
		view := unauthenticatedView()
		view.SessionServiceReachable = false
		m.apply(view, nil, seq)
		return
	}
	if session == nil {
		m.apply(unauthenticatedView(), nil, seq)
		return
	}
	m.reconcile(ctx, session, seq)
}

// reconcile reads the profile for the session subject and swaps in a fully
// built view. It either fully applies or fully no-ops: a stale or post-Close
// result is discarded in apply.
func (m *Manager) reconcile(ctx context.Context, session *domain.Session, seq uint64) {
	profileReachable := true

	profile, err := m.profiles.GetProfile(ctx, session.SubjectID)
	if err != nil {
		// Repair path: absent or unreachable rows get a minimal default. If the
		// repair write also fails the default lives only in memory so public
		// content stays usable.
		profile = domain.DefaultProfile(session.SubjectID, session.Email, m.now())
		if uerr := m.profiles.UpsertProfile(ctx, profile); uerr != nil {
			log.Printf("auth: profile repair for %s failed: %v (read error: %v)", session.SubjectID, uerr, err)
			profileReachable = false
		}
	}

	view := domain.AuthorizationView{
		HasSession:              true,
		Profile:                 &profile,
		IsAdmin:                 profile.Role.Admin(),
		IsSuperAdmin:            profile.Role.SuperAdmin(),
		PasswordChangeRequired:  profile.PasswordChangeRequired,
		SessionServiceReachable: true,
		ProfileServiceReachable: profileReachable,
	}
	m.apply(view, session, seq)
}

// apply installs a view tagged with seq. Results from a reconciliation
// superseded by a later-triggered one, or arriving after Close, are dropped.
func (m *Manager) apply(view domain.AuthorizationView, session *domain.Session, seq uint64) {
	select {
	case <-m.done:
		return
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq <= m.appliedSeq {
		return
	}
	m.appliedSeq = seq
	m.view = view
	m.session = session
	m.broadcastLocked()
}

// View returns an immutable snapshot of the current authorization state.
func (m *Manager) View() domain.AuthorizationView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Session returns the current session reference, or nil.
func (m *Manager) Session() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

// SignIn exchanges credentials for a session. The session reference and a
// best-effort view are set synchronously; profile reconciliation runs in the
// background so callers can proceed to role-gated UI without a visible stall.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	session, err := m.sessions.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	seq := m.seq.Add(1)
	view := unauthenticatedView()
	view.HasSession = true
	m.apply(view, &session, seq)

	reconcileSeq := m.seq.Add(1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconcile(context.Background(), &session, reconcileSeq)
	}()
	return nil
}

// SignOut clears the local view before issuing the remote call, so the UI
// never shows authenticated content during the round-trip. A remote failure
// is surfaced but local state stays cleared.
func (m *Manager) SignOut(ctx context.Context) error {
	seq := m.seq.Add(1)
	m.apply(unauthenticatedView(), nil, seq)

	if err := m.sessions.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ChangePassword validates the new password against the fixed policy,
// re-authenticates with the current one, and updates the credential. The
// credential update is the source of truth: a failure clearing the profile
// flag afterwards only marks the profile service unreachable.
func (m *Manager) ChangePassword(ctx context.Context, current, newPassword string) error {
	if !ValidatePassword(newPassword).OK() {
		return fmt.Errorf("change password: %w", domain.ErrPasswordPolicy)
	}

	session := m.Session()
	if session == nil {
		return fmt.Errorf("change password: %w", domain.ErrInvalidCredentials)
	}

	if _, err := m.sessions.SignInWithPassword(ctx, session.Email, current); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return fmt.Errorf("change password: %w", domain.ErrInvalidCurrentPassword)
		}
		return fmt.Errorf("change password: %w", err)
	}

	if err := m.sessions.UpdateCredential(ctx, newPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	cleared := false
	if err := m.profiles.UpdateProfile(ctx, session.SubjectID, ProfileChanges{PasswordChangeRequired: &cleared}); err != nil {
		log.Printf("auth: clearing password-change flag for %s failed: %v", session.SubjectID, err)
		m.markProfileUnreachable()
		return nil
	}

	m.mu.Lock()
	m.view.PasswordChangeRequired = false
	if m.view.Profile != nil {
		profile := *m.view.Profile
		profile.PasswordChangeRequired = false
		m.view.Profile = &profile
	}
	m.broadcastLocked()
	m.mu.Unlock()
	return nil
}

func (m *Manager) markProfileUnreachable() {
	m.mu.Lock()
	m.view.ProfileServiceReachable = false
	m.broadcastLocked()
	m.mu.Unlock()
}

// Subscribe returns a channel of view snapshots, starting with the current
// one. The caller must invoke the returned cancel function to avoid leaks.
func (m *Manager) Subscribe() (<-chan domain.AuthorizationView, func()) {
	ch := make(chan domain.AuthorizationView, 8)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	initial := m.snapshotLocked()
	m.mu.Unlock()

	ch <- initial

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) broadcastLocked() {
	snapshot := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Slow consumers get the freshest snapshot, not a backlog.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func (m *Manager) snapshotLocked() domain.AuthorizationView {
	view := m.view
	if view.Profile != nil {
		profile := *view.Profile
		view.Profile = &profile
	}
	return view
}
