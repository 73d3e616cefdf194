// Package identity implements the identity-provider collaborator over
// its REST surface. The provider is opaque to the rest of the module;
// everything upstream depends on domain.Provider only.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

const defaultTimeout = 15 * time.Second

// Client is an HTTP client for the identity provider. It holds the
// current credential pair so session refreshes can run without the
// caller shepherding tokens around.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger

	mu   sync.Mutex
	pair *domain.CredentialPair
}

// NewClient creates a provider client. baseURL is the provider's auth
// endpoint root, apiKey the service credential sent with every request.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

type userPayload struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
	PhoneConfirmedAt string `json:"phone_confirmed_at"`
}

type tokenPayload struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    int64       `json:"expires_at"`
	User         userPayload `json:"user"`
}

func (u *userPayload) verified() bool {
	return u.EmailConfirmedAt != "" || u.PhoneConfirmedAt != ""
}

func (c *Client) session(user userPayload, access string, expiresAt int64) *domain.Session {
	s := &domain.Session{
		Handle:   domain.Fingerprint(access),
		UserID:   user.ID,
		Email:    user.Email,
		Phone:    user.Phone,
		Verified: user.verified(),
		IssuedAt: time.Now(),
	}
	if expiresAt > 0 {
		s.ExpiresAt = time.Unix(expiresAt, 0)
	}
	return s
}

func (c *Client) currentPair() *domain.CredentialPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pair == nil {
		return nil
	}
	p := *c.pair
	return &p
}

func (c *Client) storePair(pair domain.CredentialPair) {
	c.mu.Lock()
	c.pair = &pair
	c.mu.Unlock()
}

func (c *Client) clearPair() {
	c.mu.Lock()
	c.pair = nil
	c.mu.Unlock()
}

// GetSession implements domain.Provider. It refreshes the held
// credential pair against the provider and returns (nil, nil) when no
// pair is held at all.
func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	pair := c.currentPair()
	if pair == nil {
		return nil, nil
	}

	var tok tokenPayload
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", pair.AccessToken,
		map[string]string{"refresh_token": pair.RefreshToken}, &tok)
	if err != nil {
		return nil, err
	}

	c.storePair(domain.CredentialPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken})
	return c.session(tok.User, tok.AccessToken, tok.ExpiresAt), nil
}

// SetSession implements domain.Provider. The pair is validated by
// fetching the user record it authorizes.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	var user userPayload
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}

	c.storePair(domain.CredentialPair{AccessToken: accessToken, RefreshToken: refreshToken})
	c.logger.Debug().
		Str("access_fp", domain.Fingerprint(accessToken)).
		Int("access_len", len(accessToken)).
		Msg("session applied")
	return c.session(user, accessToken, 0), nil
}

// VerifyOtp implements domain.Provider.
func (c *Client) VerifyOtp(ctx context.Context, tokenHash, otpType string) (*domain.Session, error) {
	var tok tokenPayload
	err := c.do(ctx, http.MethodPost, "/verify", "",
		map[string]string{"type": otpType, "token_hash": tokenHash}, &tok)
	if err != nil {
		return nil, err
	}

	c.storePair(domain.CredentialPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken})
	return c.session(tok.User, tok.AccessToken, tok.ExpiresAt), nil
}

// SignOut implements domain.Provider. The local pair is dropped even if
// the remote call fails; sign-out must always succeed locally.
func (c *Client) SignOut(ctx context.Context) error {
	pair := c.currentPair()
	c.clearPair()
	if pair == nil {
		return nil
	}

	if err := c.do(ctx, http.MethodPost, "/logout", pair.AccessToken, nil, nil); err != nil {
		c.logger.Warn().Err(err).Msg("remote sign-out failed; local session cleared anyway")
	}
	return nil
}

// Resend implements domain.Provider.
func (c *Client) Resend(ctx context.Context, otpType, identifier string) error {
	body := map[string]string{"type": otpType}
	if strings.Contains(identifier, "@") {
		body["email"] = identifier
	} else {
		body["phone"] = identifier
	}
	return c.do(ctx, http.MethodPost, "/resend", "", body, nil)
}

// do runs one JSON round trip. 4xx responses other than rate limits map
// to ErrInvalidCredential; transport failures and 5xx wrap
// ErrResolutionFailed so callers can retry without restarting the flow.
func (c *Client) do(ctx context.Context, method, path, bearer string, body any, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(payload)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrResolutionFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: provider returned %d", errors.ErrInvalidCredential, resp.StatusCode)
	default:
		return fmt.Errorf("%w: provider returned %d", errors.ErrResolutionFailed, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrResolutionFailed, err)
	}
	return nil
}
