// Package authcore reconciles a single consistent authentication state
// for the current user across deep-link callbacks, provider change
// events, and app lifecycle transitions.
package authcore

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.peddle.app/authcore/authstate"
	"go.peddle.app/authcore/callback"
	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
	"go.peddle.app/authcore/provisioning"
	"go.peddle.app/authcore/resend"
	"go.peddle.app/authcore/sessioncode"
	"go.peddle.app/authcore/watcher"
)

// Runtime is the explicitly owned handle over the whole auth core. It
// replaces free-floating module state: subscriptions and the
// initialization flag live here, Start is idempotent, and Stop releases
// everything held.
type Runtime struct {
	provider domain.Provider
	machine  *authstate.Machine
	coord    *provisioning.Coordinator
	router   *callback.Router
	watcher  *watcher.Watcher
	resend   *resend.Controller
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
}

// Options configures a Runtime.
type Options struct {
	// Resolver resolves session codes; defaults to a local exchange
	// over an in-memory store.
	Resolver callback.CodeResolver
	// ResendCooldown defaults to resend.DefaultCooldown.
	ResendCooldown time.Duration
	// PollCooldown defaults to watcher.DefaultPollCooldown.
	PollCooldown time.Duration
	// Logger defaults to a nop logger.
	Logger *zerolog.Logger
}

// New wires a Runtime from its collaborators.
func New(provider domain.Provider, profiles domain.ProfileStore, opts Options) *Runtime {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = sessioncode.NewExchange(sessioncode.NewMemoryStore(),
			sessioncode.WithLogger(logger))
	}

	machine := authstate.NewMachine(logger)
	coord := provisioning.NewCoordinator(profiles, machine.CurrentSession, logger)

	watcherOpts := []watcher.Option{}
	if opts.PollCooldown > 0 {
		watcherOpts = append(watcherOpts, watcher.WithCooldown(opts.PollCooldown))
	}

	return &Runtime{
		provider: provider,
		machine:  machine,
		coord:    coord,
		router:   callback.NewRouter(provider, resolver, machine, coord, logger),
		watcher:  watcher.NewWatcher(provider, machine, coord, logger, watcherOpts...),
		resend:   resend.NewController(provider, coord, opts.ResendCooldown, logger),
		logger:   logger,
	}
}

// Start restores the last-known session and, when one exists, starts
// the verification watcher for it. Calling Start on a started runtime
// is a no-op. A corrupted stored session is recoverable by design: the
// provider session is dropped, the machine lands in anonymous, and
// Start still succeeds.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	if err := r.machine.BeginRestore(); err != nil {
		return err
	}

	session, err := r.provider.GetSession(ctx)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidCredential) {
			// The stored session no longer restores. Force a local
			// sign-out and carry on anonymous; never crash.
			restoreErr := errors.NewSessionRestoreCorrupted(err)
			r.logger.Warn().Err(err).Msg("stored session corrupted; forcing sign-out")
			if soErr := r.provider.SignOut(ctx); soErr != nil {
				r.logger.Warn().Err(soErr).Msg("provider sign-out during recovery failed")
			}
			return r.machine.CompleteRestore(nil, false, restoreErr)
		}
		// Transient: report restore as empty-handed but do not destroy
		// anything; the foreground poll picks the session back up.
		r.logger.Warn().Err(err).Msg("session restore hit a transient failure")
		return r.machine.CompleteRestore(nil, false, nil)
	}

	// Settle the restored session first: the coordinator only provisions
	// for the machine's current session.
	if err := r.machine.CompleteRestore(session, false, nil); err != nil {
		return err
	}
	if session != nil && session.Verified {
		if _, ensureErr := r.coord.Ensure(ctx, session.UserID, "restore"); ensureErr != nil {
			r.logger.Warn().Err(ensureErr).Msg("profile check during restore failed")
		} else if err := r.machine.MarkProvisioned(); err != nil {
			r.logger.Debug().Err(err).Msg("provisioned transition already applied")
		}
	}

	if session != nil {
		if err := r.watcher.Start(ctx, session.UserID); err != nil {
			r.logger.Warn().Err(err).Msg("verification watcher failed to start")
		}
	}
	return nil
}

// Stop releases the watcher subscription and stops the state actor.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.started = false
	r.watcher.Stop()
	r.machine.Close()
}

// HandleLink processes an inbound deep/universal link. After a link
// establishes a session, the watcher follows it.
func (r *Runtime) HandleLink(ctx context.Context, rawURL string) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return errors.ErrNotStarted
	}

	if err := r.router.Handle(ctx, rawURL); err != nil {
		return err
	}
	if session := r.machine.CurrentSession(); session != nil {
		if err := r.watcher.Start(ctx, session.UserID); err != nil {
			r.logger.Warn().Err(err).Msg("verification watcher failed to start")
		}
	}
	return nil
}

// OnForeground runs the fallback verification poll.
func (r *Runtime) OnForeground(ctx context.Context) {
	r.watcher.OnForeground(ctx)
}

// ResendVerification dispatches another verification message for the
// current session's identifier, subject to the cooldown.
func (r *Runtime) ResendVerification(ctx context.Context, otpType string) error {
	session := r.machine.CurrentSession()
	if session == nil {
		return errors.NewAuthRequired("no session to resend verification for")
	}
	return r.resend.Resend(ctx, otpType, session.Identifier())
}

// RetryProvision runs one user-initiated provisioning retry.
func (r *Runtime) RetryProvision(ctx context.Context) (int, error) {
	session := r.machine.CurrentSession()
	if session == nil {
		return 0, errors.NewAuthRequired("no session to provision for")
	}
	attempt, _, err := r.resend.RetryProvision(ctx, session.UserID)
	if err == nil {
		if markErr := r.machine.MarkProvisioned(); markErr != nil {
			r.logger.Debug().Err(markErr).Msg("provisioned transition already applied")
		}
	}
	return attempt, err
}

// SignOut clears provider and local state from any auth state.
func (r *Runtime) SignOut(ctx context.Context) error {
	r.watcher.Stop()
	if err := r.provider.SignOut(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("provider sign-out failed; clearing local state anyway")
	}
	return r.machine.SignOut()
}

// Snapshot reports the current consistent auth view.
func (r *Runtime) Snapshot() authstate.Snapshot {
	return r.machine.Snapshot()
}

// Updates exposes post-transition snapshots for presentation layers.
func (r *Runtime) Updates() <-chan authstate.Snapshot {
	return r.machine.Updates()
}
