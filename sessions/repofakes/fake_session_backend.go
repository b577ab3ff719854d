package fakesessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-reconciler/identity"
	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/jrsteele09/go-session-reconciler/onboarding"
	"github.com/jrsteele09/go-session-reconciler/sessions"
	"github.com/jrsteele09/go-session-reconciler/tenants"
	"github.com/jrsteele09/go-session-reconciler/users"
)

var _ sessions.Backend = (*FakeBackend)(nil)

// OnboardingSource supplies the onboarding snapshot attached to each session read.
type OnboardingSource func(ctx context.Context, userID string) (onboarding.State, error)

// FakeBackend is an in-memory session API. When an OnboardingSource is set, a user whose
// wizard is COMPLETE gets a completed profile and a tenant, the way the real backend
// provisions them.
type FakeBackend struct {
	lock sync.RWMutex

	sessions   map[string]*sessions.SessionData
	profiles   map[string]*users.Profile
	onboarding OnboardingSource
	ttl        time.Duration
	nowTime    func() time.Time

	getErr      error
	failNext    int
	failNextErr error
	getGate     chan struct{}
	getCalls    int
	deletes     int
	deleteErr   error
	refreshErr  error
	refreshes   int
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		sessions: make(map[string]*sessions.SessionData),
		profiles: make(map[string]*users.Profile),
		ttl:      24 * time.Hour,
		nowTime:  time.Now,
	}
}

func (fb *FakeBackend) SetNowTime(nowFunc func() time.Time) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.nowTime = nowFunc
}

func (fb *FakeBackend) SetOnboardingSource(source OnboardingSource) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.onboarding = source
}

// Upsert stores a session snapshot as-is.
func (fb *FakeBackend) Upsert(data *sessions.SessionData) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	cp := *data
	fb.sessions[data.ID] = &cp
}

// SetProfile stores the backend profile for a user.
func (fb *FakeBackend) SetProfile(profile users.Profile) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.profiles[profile.UserID] = &profile
}

// FailGets makes every Get return err until called again with nil.
func (fb *FakeBackend) FailGets(err error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.getErr = err
}

// FailNextGets makes the next n Gets return err.
func (fb *FakeBackend) FailNextGets(n int, err error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.failNext = n
	fb.failNextErr = err
}

func (fb *FakeBackend) FailRefreshes(err error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.refreshErr = err
}

func (fb *FakeBackend) RefreshCalls() int {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	return fb.refreshes
}

func (fb *FakeBackend) FailDeletes(err error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.deleteErr = err
}

// GateGets makes Get block until the returned channel is closed.
func (fb *FakeBackend) GateGets() chan struct{} {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.getGate = make(chan struct{})
	return fb.getGate
}

func (fb *FakeBackend) GetCalls() int {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	return fb.getCalls
}

func (fb *FakeBackend) DeleteCalls() int {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	return fb.deletes
}

func (fb *FakeBackend) Exists(sessionID string) bool {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	_, ok := fb.sessions[sessionID]
	return ok
}

func (fb *FakeBackend) Get(ctx context.Context, sessionID string) (*sessions.SessionData, error) {
	fb.lock.Lock()
	fb.getCalls++
	gate := fb.getGate
	fb.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fb.lock.Lock()
	getErr := fb.getErr
	if fb.failNext > 0 {
		fb.failNext--
		getErr = fb.failNextErr
	}
	session, ok := fb.sessions[sessionID]
	fb.lock.Unlock()

	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return fb.snapshot(ctx, session)
}

func (fb *FakeBackend) Create(ctx context.Context, claims identity.Claims) (*sessions.SessionData, error) {
	if claims.Subject == "" {
		return nil, errors.New("subject is required")
	}

	fb.lock.Lock()
	now := fb.nowTime()
	session := &sessions.SessionData{
		Session: sessions.Session{
			ID:        uuid.NewString(),
			UserID:    claims.Subject,
			CreatedAt: now,
			ExpiresAt: now.Add(fb.ttl),
		},
		Claims: claims,
	}
	fb.sessions[session.ID] = session
	fb.lock.Unlock()

	return fb.snapshot(ctx, session)
}

func (fb *FakeBackend) Refresh(ctx context.Context, sessionID string) (*sessions.SessionData, error) {
	fb.lock.Lock()
	fb.refreshes++
	refreshErr := fb.refreshErr
	session, ok := fb.sessions[sessionID]
	fb.lock.Unlock()
	if refreshErr != nil {
		return nil, refreshErr
	}
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return fb.snapshot(ctx, session)
}

func (fb *FakeBackend) Delete(_ context.Context, sessionID string) error {
	fb.lock.Lock()
	defer fb.lock.Unlock()

	fb.deletes++
	if fb.deleteErr != nil {
		return fb.deleteErr
	}
	if _, ok := fb.sessions[sessionID]; !ok {
		return apperrors.ErrSessionNotFound
	}
	delete(fb.sessions, sessionID)
	return nil
}

// DeleteExpiredSessions removes sessions that expired before expiryTime.
func (fb *FakeBackend) DeleteExpiredSessions(expiryTime time.Time) int {
	fb.lock.Lock()
	defer fb.lock.Unlock()

	removed := 0
	for sessionID, session := range fb.sessions {
		if session.ExpiresAt.Before(expiryTime) {
			delete(fb.sessions, sessionID)
			removed++
		}
	}
	return removed
}

// snapshot assembles the response for a stored session.
func (fb *FakeBackend) snapshot(ctx context.Context, session *sessions.SessionData) (*sessions.SessionData, error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()

	cp := *session
	userID := cp.UserID

	if fb.onboarding != nil && userID != "" {
		state, err := fb.onboarding(ctx, userID)
		if err != nil {
			return nil, err
		}
		cp.Onboarding = &state
		if state.Complete() {
			profile := fb.profiles[userID]
			if profile == nil {
				profile = &users.Profile{UserID: userID, Email: cp.Claims.Email}
				fb.profiles[userID] = profile
			}
			if profile.TenantID == "" {
				profile.TenantID = tenants.DeriveID(userID)
			}
			profile.OnboardingCompleted = true
			profile.NeedsOnboarding = false
		}
	}

	if profile, ok := fb.profiles[userID]; ok {
		p := *profile
		cp.Profile = &p
		if cp.TenantID == "" {
			cp.TenantID = p.TenantID
		}
	}
	return &cp, nil
}
