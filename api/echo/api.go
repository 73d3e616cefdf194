// Package echo exposes the companion HTTP surface: the issuing side of
// the cross-device flow, plus a headless link-handling endpoint for the
// reference host.
package echo

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	authcore "go.peddle.app/authcore"
	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
	"go.peddle.app/authcore/sessioncode"
)

// AuthCallbackAPI holds the companion-service dependencies.
type AuthCallbackAPI struct {
	exchange     *sessioncode.Exchange
	runtime      *authcore.Runtime
	redirectBase string
}

// NewAuthCallbackAPI creates the API. redirectBase is the app deep-link
// base the web callback redirects to, e.g. "app://auth/callback".
func NewAuthCallbackAPI(exchange *sessioncode.Exchange, runtime *authcore.Runtime, redirectBase string) *AuthCallbackAPI {
	return &AuthCallbackAPI{
		exchange:     exchange,
		runtime:      runtime,
		redirectBase: redirectBase,
	}
}

// RegisterRoutes registers the companion routes.
func (a *AuthCallbackAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/session-codes", a.IssueHandler)
	e.POST("/v1/session-codes/resolve", a.ResolveHandler)
	e.POST("/v1/links/handle", a.HandleLinkHandler)
	e.GET("/v1/state", a.StateHandler)
	e.GET("/livez", a.LivezHandler)
}

type issueRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type issueResponse struct {
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	RedirectURL string    `json:"redirect_url"`
}

// IssueHandler receives the credential pair from a completed web
// verification and hands back a single-use code plus the deep link to
// send the user's device to. Raw tokens stop here; only the code
// travels in the URL.
func (a *AuthCallbackAPI) IssueHandler(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidInput("malformed issue request"))
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidInput("access_token and refresh_token are required"))
	}

	pair := domain.CredentialPair{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken}
	code, expiresAt, err := a.exchange.Issue(c.Request().Context(), pair)
	if err != nil {
		log.Ctx(c.Request().Context()).Error().Err(err).Msg("session code issuance failed")
		return c.JSON(http.StatusInternalServerError, errors.NewResolutionFailed("session code issuance failed", nil))
	}

	return c.JSON(http.StatusOK, issueResponse{
		Code:        code,
		ExpiresAt:   expiresAt,
		RedirectURL: fmt.Sprintf("%s?session_code=%s", a.redirectBase, url.QueryEscape(code)),
	})
}

type resolveRequest struct {
	Code string `json:"code"`
}

// ResolveHandler exchanges a code for its pair, once. Consumed and
// expired codes are indistinguishable from never-issued ones.
func (a *AuthCallbackAPI) ResolveHandler(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidInput("malformed resolve request"))
	}

	pair, err := a.exchange.Resolve(c.Request().Context(), req.Code)
	if err != nil {
		switch errors.ClassOf(err) {
		case errors.ClassInvalidInput:
			return c.JSON(http.StatusBadRequest, err)
		case errors.ClassNotFoundOrExpired:
			return c.JSON(http.StatusNotFound, err)
		default:
			return c.JSON(http.StatusServiceUnavailable, err)
		}
	}

	return c.JSON(http.StatusOK, pair)
}

type handleLinkRequest struct {
	URL string `json:"url"`
}

// HandleLinkHandler feeds a callback URL through the runtime's link
// router, mirroring what the app does with an inbound deep link.
func (a *AuthCallbackAPI) HandleLinkHandler(c echo.Context) error {
	if a.runtime == nil {
		return c.JSON(http.StatusNotImplemented, errors.NewInvalidInput("link handling not enabled on this host"))
	}

	var req handleLinkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidInput("malformed link request"))
	}

	if err := a.runtime.HandleLink(c.Request().Context(), req.URL); err != nil {
		switch errors.ClassOf(err) {
		case errors.ClassInvalidInput:
			return c.JSON(http.StatusBadRequest, err)
		case errors.ClassNotFoundOrExpired:
			return c.JSON(http.StatusGone, err)
		case errors.ClassAuthRequired:
			return c.JSON(http.StatusUnauthorized, err)
		default:
			return c.JSON(http.StatusServiceUnavailable, err)
		}
	}

	return a.StateHandler(c)
}

type stateResponse struct {
	State        domain.State `json:"state"`
	UserID       string       `json:"user_id,omitempty"`
	Verified     bool         `json:"verified"`
	ProfileReady bool         `json:"profile_ready"`
	Message      string       `json:"message,omitempty"`
}

// StateHandler reports the runtime's auth snapshot.
func (a *AuthCallbackAPI) StateHandler(c echo.Context) error {
	if a.runtime == nil {
		return c.JSON(http.StatusNotImplemented, errors.NewInvalidInput("state reporting not enabled on this host"))
	}

	snap := a.runtime.Snapshot()
	resp := stateResponse{
		State:        snap.State,
		ProfileReady: snap.ProfileReady,
		Message:      snap.Message,
	}
	if snap.Session != nil {
		resp.UserID = snap.Session.UserID
		resp.Verified = snap.Session.Verified
	}
	return c.JSON(http.StatusOK, resp)
}

// LivezHandler is the liveness probe.
func (a *AuthCallbackAPI) LivezHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
