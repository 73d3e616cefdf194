package echo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.peddle.app/authcore/sessioncode"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	exchange := sessioncode.NewExchange(sessioncode.NewMemoryStore())
	api := NewAuthCallbackAPI(exchange, nil, "app://auth/callback")
	e := echo.New()
	api.RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIssueHandlerReturnsCodeAndRedirect(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/session-codes",
		`{"access_token":"tok1","refresh_token":"tok2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Code        string `json:"code"`
		RedirectURL string `json:"redirect_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Code, sessioncode.CodeLength)
	assert.Equal(t, "app://auth/callback?session_code="+resp.Code, resp.RedirectURL)
	assert.NotContains(t, rec.Body.String(), "tok1", "raw tokens must not echo back in the URL payload")
}

func TestIssueHandlerRejectsMissingTokens(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/session-codes", `{"access_token":"tok1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveHandlerIsSingleUse(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/session-codes",
		`{"access_token":"tok1","refresh_token":"tok2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	rec = doJSON(e, http.MethodPost, "/v1/session-codes/resolve", `{"code":"`+issued.Code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.Equal(t, "tok1", pair.AccessToken)
	assert.Equal(t, "tok2", pair.RefreshToken)

	// Second resolve of the same code must look like it never existed.
	rec = doJSON(e, http.MethodPost, "/v1/session-codes/resolve", `{"code":"`+issued.Code+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveHandlerRejectsMalformedCode(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/session-codes/resolve", `{"code":"too-short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveHandlerUnknownCodeIs404(t *testing.T) {
	e := newTestServer(t)

	unknown := strings.Repeat("ab", sessioncode.CodeLength/2)
	rec := doJSON(e, http.MethodPost, "/v1/session-codes/resolve", `{"code":"`+unknown+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStateHandlerWithoutRuntime(t *testing.T) {
	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestLivez(t *testing.T) {
	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
