// Package provisioning guarantees a backing profile record exists for an
// authenticated identity, exactly once per racing set of triggers.
package provisioning

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// SessionFunc reports the current authenticated session, or nil. The
// coordinator refuses to touch the store without one.
type SessionFunc func() *domain.Session

// Coordinator deduplicates concurrent Ensure calls per user ID. The
// in-flight entry is forgotten when the attempt settles, success or
// failure, so a later call can retry after a failed one.
type Coordinator struct {
	store   domain.ProfileStore
	session SessionFunc
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewCoordinator creates a Coordinator over the given record store.
func NewCoordinator(store domain.ProfileStore, session SessionFunc, logger zerolog.Logger) *Coordinator {
	return &Coordinator{store: store, session: session, logger: logger}
}

// Ensure makes sure a profile exists for userID. It is idempotent: a
// profile that already exists is success, not an error; that is the
// common case when multiple devices race to provision the same account.
// Concurrent callers for the same userID share a single underlying
// attempt and all receive its result. The trigger label is diagnostics
// only; it never changes behavior.
func (c *Coordinator) Ensure(ctx context.Context, userID, trigger string) (*domain.Profile, error) {
	if userID == "" {
		return nil, errors.NewInvalidInput("ensure called without a user id")
	}

	sess := c.session()
	if sess == nil || sess.UserID != userID {
		return nil, errors.NewAuthRequired("no authenticated session for profile provisioning")
	}
	email := sess.Email

	// The attempt is shared across whichever triggers are waiting, so it
	// must not die with the first caller's context.
	attemptCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(userID, func() (interface{}, error) {
		return c.ensure(attemptCtx, userID, email)
	})

	logEvent := c.logger.Debug().
		Str("user_id", userID).
		Str("trigger", trigger).
		Bool("shared", shared)
	if err != nil {
		logEvent.Str("error_class", string(errors.ClassOf(err))).Msg("profile provisioning failed")
		return nil, err
	}
	logEvent.Msg("profile provisioning settled")

	return v.(*domain.Profile), nil
}

func (c *Coordinator) ensure(ctx context.Context, userID, email string) (*domain.Profile, error) {
	profile, err := c.store.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !stderrors.Is(err, errors.ErrProfileNotFound) {
		return nil, c.classify(err)
	}

	profile, err = c.store.CreateProfile(ctx, userID, email)
	if err == nil {
		return profile, nil
	}

	// Another device won the create race. Fetch what it wrote.
	if stderrors.Is(err, errors.ErrProfileExists) {
		profile, getErr := c.store.GetProfile(ctx, userID)
		if getErr != nil {
			return nil, c.classify(fmt.Errorf("profile exists but fetch failed: %w", getErr))
		}
		return profile, nil
	}

	return nil, c.classify(err)
}

func (c *Coordinator) classify(err error) error {
	if stderrors.Is(err, errors.ErrAuthRequired) {
		return errors.NewAuthRequired(err.Error())
	}
	if cls := errors.ClassOf(err); cls != "" {
		return err
	}
	return errors.NewProvisioningFailed("profile store operation failed", err)
}
