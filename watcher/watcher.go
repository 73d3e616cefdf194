// Package watcher detects out-of-band verification for the current
// identity: a push path over the provider change feed, and a foreground
// poll fallback for missed or delayed push delivery.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.peddle.app/authcore/authstate"
	"go.peddle.app/authcore/domain"
)

// DefaultPollCooldown bounds redundant foreground refreshes.
const DefaultPollCooldown = 30 * time.Second

// Provisioner is the slice of the provisioning coordinator the watcher
// needs.
type Provisioner interface {
	Ensure(ctx context.Context, userID, trigger string) (*domain.Profile, error)
}

// Watcher is an explicitly owned runtime handle. Start is idempotent;
// Stop releases the held subscription. Both detection paths converge on
// the same idempotent state/provisioning calls, so double detection is
// harmless by construction rather than by sequencing.
type Watcher struct {
	provider    domain.Provider
	machine     *authstate.Machine
	provisioner Provisioner
	cooldown    time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu         sync.Mutex
	started    bool
	cancelFeed func()
	lastCheck  time.Time
	done       chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithCooldown overrides the foreground poll cooldown.
func WithCooldown(d time.Duration) Option {
	return func(w *Watcher) { w.cooldown = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// NewWatcher creates a stopped Watcher.
func NewWatcher(provider domain.Provider, machine *authstate.Machine, provisioner Provisioner, logger zerolog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		provider:    provider,
		machine:     machine,
		provisioner: provisioner,
		cooldown:    DefaultPollCooldown,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes to the change feed for userID. Calling Start on a
// started watcher is a no-op.
func (w *Watcher) Start(ctx context.Context, userID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	events, cancel, err := w.provider.Subscribe(ctx, userID)
	if err != nil {
		return err
	}
	w.started = true
	w.cancelFeed = cancel
	w.done = make(chan struct{})

	go w.consume(events, w.done)
	w.logger.Info().Str("user_id", userID).Msg("verification watcher started")
	return nil
}

// Stop tears the subscription down. Safe to call repeatedly.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.started = false
	w.cancelFeed()
	close(w.done)
	w.cancelFeed = nil
	w.logger.Info().Msg("verification watcher stopped")
}

func (w *Watcher) consume(events <-chan domain.Event, done chan struct{}) {
	ctx := w.logger.WithContext(context.Background())
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ctx, evt)
		case <-done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, evt domain.Event) {
	switch e := evt.(type) {
	case domain.UserUpdated:
		if e.Verified {
			w.refresh(ctx, "push_event")
		}
	case domain.SignedIn:
		if e.Session.Verified {
			w.refresh(ctx, "push_event")
		}
	case domain.SignedOut:
		if err := w.machine.SignOut(); err != nil {
			w.logger.Warn().Err(err).Msg("sign-out event not applied")
		}
	case domain.TokenRefreshed:
		// Credential rotation; nothing to reconcile.
	case domain.UnknownEvent:
		w.logger.Debug().Str("kind", e.Kind).Msg("ignoring unrecognized feed event")
	}
}

// OnForeground runs the fallback poll on an app-foreground transition.
// It is a no-op while the cooldown holds or once the user is ready.
func (w *Watcher) OnForeground(ctx context.Context) {
	if w.machine.Snapshot().State == domain.StateReady {
		return
	}

	w.mu.Lock()
	now := w.now()
	if !w.lastCheck.IsZero() && now.Sub(w.lastCheck) < w.cooldown {
		w.mu.Unlock()
		w.logger.Debug().Msg("foreground poll within cooldown; skipping")
		return
	}
	w.lastCheck = now
	w.mu.Unlock()

	w.refresh(ctx, "foreground_poll")
}

// refresh re-fetches the session and, when it turns out verified, drives
// the same transition/provisioning path the callback router uses.
func (w *Watcher) refresh(ctx context.Context, trigger string) {
	session, err := w.provider.GetSession(ctx)
	if err != nil {
		// Transient by policy: state untouched, the next trigger
		// retries.
		w.logger.Warn().Err(err).Str("trigger", trigger).Msg("session refresh failed")
		return
	}
	if session == nil || !session.Verified {
		return
	}

	if err := w.machine.ApplyVerified(session); err != nil {
		w.logger.Debug().Err(err).Msg("verification already applied")
	}
	if _, err := w.provisioner.Ensure(ctx, session.UserID, trigger); err != nil {
		w.logger.Warn().Err(err).Str("trigger", trigger).Msg("provisioning after verification failed")
		return
	}
	if err := w.machine.MarkProvisioned(); err != nil {
		w.logger.Debug().Err(err).Msg("provisioned transition already applied")
	}
	w.logger.Info().Str("trigger", trigger).Str("user_id", session.UserID).Msg("verification reconciled")
}
