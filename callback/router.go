// Package callback routes inbound deep-link events through credential
// extraction, session establishment, and profile provisioning.
package callback

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog"

	"go.peddle.app/authcore/authstate"
	"go.peddle.app/authcore/deeplink"
	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// CodeResolver resolves a session code back to its credential pair. Both
// the local exchange and the remote companion-service client satisfy it.
type CodeResolver interface {
	Resolve(ctx context.Context, code string) (domain.CredentialPair, error)
}

// Provisioner is the slice of the provisioning coordinator the router
// needs.
type Provisioner interface {
	Ensure(ctx context.Context, userID, trigger string) (*domain.Profile, error)
}

// Router handles raw inbound link events.
type Router struct {
	provider    domain.Provider
	resolver    CodeResolver
	machine     *authstate.Machine
	provisioner Provisioner
	logger      zerolog.Logger
}

// NewRouter creates a Router.
func NewRouter(provider domain.Provider, resolver CodeResolver, machine *authstate.Machine, provisioner Provisioner, logger zerolog.Logger) *Router {
	return &Router{
		provider:    provider,
		resolver:    resolver,
		machine:     machine,
		provisioner: provisioner,
		logger:      logger,
	}
}

// Handle validates and processes one callback URL. On any failure the
// state machine keeps its prior state; a transient resolution failure is
// never a reason to sign the user out. Only the identity provider's own
// invalid-credential verdict ends a link flow for good, and even that
// leaves the local session alone.
func (r *Router) Handle(ctx context.Context, rawURL string) error {
	creds, err := deeplink.Extract(ctx, rawURL)
	if err != nil {
		return err
	}

	var session *domain.Session
	switch c := creds.(type) {
	case domain.SessionCode:
		var pair domain.CredentialPair
		pair, err = r.resolver.Resolve(ctx, c.Code)
		if err != nil {
			r.logger.Warn().
				Str("error_class", string(errors.ClassOf(err))).
				Msg("session code resolution failed")
			return err
		}
		session, err = r.provider.SetSession(ctx, pair.AccessToken, pair.RefreshToken)

	case domain.DirectTokens:
		session, err = r.provider.SetSession(ctx, c.AccessToken, c.RefreshToken)

	case domain.OtpHash:
		session, err = r.provider.VerifyOtp(ctx, c.TokenHash, c.Type)

	case domain.NoCredentials:
		// Pure "return to app" signal: verification may already have
		// completed server-side, so re-fetch and check.
		session, err = r.provider.GetSession(ctx)
	}

	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidCredential) {
			r.logger.Warn().Msg("identity provider rejected link credentials")
			return errors.NewNotFoundOrExpired(errors.ErrInvalidCredential.Error())
		}
		r.logger.Warn().
			Str("error_class", string(errors.ClassOf(err))).
			Msg("session establishment failed")
		return errors.NewResolutionFailed("session establishment failed", err)
	}

	if session == nil {
		r.logger.Debug().Msg("callback carried no session; state unchanged")
		return nil
	}

	if !session.Verified {
		// Session live but contact unverified; record it and keep
		// waiting.
		if applyErr := r.machine.SignUpPending(session); applyErr != nil {
			r.logger.Debug().Err(applyErr).Msg("pending session not applied")
		}
		return nil
	}

	if err := r.machine.ApplyVerified(session); err != nil {
		r.logger.Debug().Err(err).Msg("verification already applied")
	}

	if _, err := r.provisioner.Ensure(ctx, session.UserID, "callback"); err != nil {
		return err
	}
	if err := r.machine.MarkProvisioned(); err != nil {
		r.logger.Debug().Err(err).Msg("provisioned transition already applied")
	}

	r.logger.Info().Str("user_id", session.UserID).Msg("callback flow complete")
	return nil
}
