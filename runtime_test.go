package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.peddle.app/authcore/authstate"
	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

type stubProvider struct {
	mu       sync.Mutex
	session  *domain.Session
	getErr   error
	signOuts int
	events   chan domain.Event
}

func newStubProvider(session *domain.Session) *stubProvider {
	return &stubProvider{session: session, events: make(chan domain.Event)}
}

func (p *stubProvider) GetSession(context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.session, nil
}

func (p *stubProvider) SetSession(_ context.Context, _, _ string) (*domain.Session, error) {
	return p.session, nil
}

func (p *stubProvider) VerifyOtp(context.Context, string, string) (*domain.Session, error) {
	return p.session, nil
}

func (p *stubProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	p.session = nil
	return nil
}

func (p *stubProvider) Resend(context.Context, string, string) error { return nil }

func (p *stubProvider) Subscribe(context.Context, string) (<-chan domain.Event, func(), error) {
	return p.events, func() {}, nil
}

func (p *stubProvider) signOutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

type stubProfiles struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: map[string]*domain.Profile{}}
}

func (s *stubProfiles) CreateProfile(_ context.Context, userID, email string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[userID]; ok {
		return nil, errors.ErrProfileExists
	}
	p := &domain.Profile{ID: "p-" + userID, UserID: userID, Email: email, CreatedAt: time.Now()}
	s.profiles[userID] = p
	return p, nil
}

func (s *stubProfiles) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return nil, errors.ErrProfileNotFound
}

func verifiedSession() *domain.Session {
	return &domain.Session{
		Handle:   "h1",
		UserID:   "user-1",
		Email:    "u@example.com",
		Verified: true,
	}
}

func TestStartRestoresVerifiedSessionToReady(t *testing.T) {
	provider := newStubProvider(verifiedSession())
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))

	snap := r.Snapshot()
	assert.Equal(t, domain.StateReady, snap.State)
	assert.True(t, snap.ProfileReady)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "user-1", snap.Session.UserID)
}

func TestStartWithoutStoredSession(t *testing.T) {
	provider := newStubProvider(nil)
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, domain.StateAnonymous, r.Snapshot().State)
}

func TestStartRecoversFromCorruptedSession(t *testing.T) {
	provider := newStubProvider(verifiedSession())
	provider.getErr = errors.ErrInvalidCredential
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))

	assert.Equal(t, domain.StateAnonymous, r.Snapshot().State)
	assert.Equal(t, 1, provider.signOutCount(), "corrupted restore must force a provider sign-out")
}

func TestStartTransientFailureLeavesAnonymousWithoutSignOut(t *testing.T) {
	provider := newStubProvider(verifiedSession())
	provider.getErr = errors.ErrResolutionFailed
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))

	assert.Equal(t, domain.StateAnonymous, r.Snapshot().State)
	assert.Zero(t, provider.signOutCount(), "transient failures must not destroy the stored session")
}

func TestStartIsIdempotent(t *testing.T) {
	provider := newStubProvider(verifiedSession())
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, domain.StateReady, r.Snapshot().State)
}

func TestHandleLinkBeforeStart(t *testing.T) {
	r := New(newStubProvider(nil), newStubProfiles(), Options{})
	defer r.Stop()

	err := r.HandleLink(context.Background(), "app://auth/callback")
	require.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestSignOutClearsEverything(t *testing.T) {
	provider := newStubProvider(verifiedSession())
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))
	require.Equal(t, domain.StateReady, r.Snapshot().State)

	require.NoError(t, r.SignOut(context.Background()))

	snap := r.Snapshot()
	assert.Equal(t, domain.StateAnonymous, snap.State)
	assert.Nil(t, snap.Session)
	assert.Equal(t, 1, provider.signOutCount())
}

func TestResendWithoutSession(t *testing.T) {
	r := New(newStubProvider(nil), newStubProfiles(), Options{})
	defer r.Stop()

	require.NoError(t, r.Start(context.Background()))
	err := r.ResendVerification(context.Background(), "signup")
	assert.Equal(t, errors.ClassAuthRequired, errors.ClassOf(err))
}

func TestUpdatesDeliverTransitions(t *testing.T) {
	provider := newStubProvider(verifiedSession())
	r := New(provider, newStubProfiles(), Options{})
	defer r.Stop()

	updates := r.Updates()
	require.NoError(t, r.Start(context.Background()))

	deadline := time.After(time.Second)
	for {
		var snap authstate.Snapshot
		select {
		case snap = <-updates:
		case <-deadline:
			t.Fatal("no ready snapshot observed")
		}
		if snap.State == domain.StateReady {
			return
		}
	}
}
