// Package resend throttles verification-email resend requests and
// tracks user-initiated provisioning retries.
package resend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"go.peddle.app/authcore/domain"
)

// DefaultCooldown is the resend cooldown window.
const DefaultCooldown = 60 * time.Second

// CooldownError rejects a resend attempted while the window is active.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend on cooldown for another %ds", int(e.Remaining.Seconds()+0.5))
}

// RemainingSeconds is the value the presentation layer counts down from.
func (e *CooldownError) RemainingSeconds() int {
	return int(e.Remaining.Seconds() + 0.5)
}

// Provisioner is the slice of the provisioning coordinator the retry
// path needs.
type Provisioner interface {
	Ensure(ctx context.Context, userID, trigger string) (*domain.Profile, error)
}

// Controller throttles resends with a token-bucket of one token per
// cooldown window. The token is consumed only after the provider
// accepted the dispatch, so a failed resend can be retried immediately.
type Controller struct {
	provider    domain.Provider
	provisioner Provisioner
	limiter     *rate.Limiter
	cooldown    time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewController creates a Controller with the given cooldown; zero means
// DefaultCooldown.
func NewController(provider domain.Provider, provisioner Provisioner, cooldown time.Duration, logger zerolog.Logger) *Controller {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Controller{
		provider:    provider,
		provisioner: provisioner,
		limiter:     rate.NewLimiter(rate.Every(cooldown), 1),
		cooldown:    cooldown,
		logger:      logger,
		attempts:    map[string]int{},
	}
}

// Resend dispatches another verification message. While the cooldown is
// active the call is rejected with the remaining wait and no message is
// sent. The token is reserved before dispatching, so two concurrent
// calls cannot both pass the gate; a provider failure returns the
// reservation and does not start the cooldown.
func (c *Controller) Resend(ctx context.Context, otpType, identifier string) error {
	res := c.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		c.logger.Debug().Dur("remaining", delay).Msg("resend rejected by cooldown")
		return &CooldownError{Remaining: delay}
	}

	if err := c.provider.Resend(ctx, otpType, identifier); err != nil {
		res.Cancel()
		c.logger.Warn().Err(err).Str("otp_type", otpType).Msg("resend dispatch failed")
		return err
	}

	c.logger.Info().Str("otp_type", otpType).Msg("verification message resent")
	return nil
}

// RetryProvision runs one more user-initiated provisioning attempt and
// returns the attempt count alongside the result. The controller does
// not cap retries; the count lets the presentation layer decide when to
// stop offering the affordance.
func (c *Controller) RetryProvision(ctx context.Context, userID string) (int, *domain.Profile, error) {
	c.mu.Lock()
	c.attempts[userID]++
	attempt := c.attempts[userID]
	c.mu.Unlock()

	profile, err := c.provisioner.Ensure(ctx, userID, fmt.Sprintf("retry_%d", attempt))
	if err != nil {
		return attempt, nil, err
	}

	c.mu.Lock()
	delete(c.attempts, userID)
	c.mu.Unlock()
	return attempt, profile, nil
}

// Attempts reports the provisioning retry count for a user.
func (c *Controller) Attempts(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[userID]
}
