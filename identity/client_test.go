package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

func confirmedUser() map[string]any {
	return map[string]any{
		"id":                 "user-1",
		"email":              "u@example.com",
		"email_confirmed_at": "2026-08-27T10:00:00Z",
	}
}

func TestSetSessionMapsVerifiedUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		require.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		require.Equal(t, "test-key", r.Header.Get("apikey"))
		json.NewEncoder(w).Encode(confirmedUser())
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	sess, err := c.SetSession(context.Background(), "tok1", "tok2")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, "u@example.com", sess.Email)
	assert.True(t, sess.Verified)
	assert.NotContains(t, sess.Handle, "tok1", "handle must not embed the raw token")
}

func TestSetSessionUnverifiedUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "email": "u@example.com"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	sess, err := c.SetSession(context.Background(), "tok1", "tok2")
	require.NoError(t, err)
	assert.False(t, sess.Verified)
}

func TestSetSessionRejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	_, err := c.SetSession(context.Background(), "bad", "worse")
	require.ErrorIs(t, err, errors.ErrInvalidCredential)
}

func TestSetSessionTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	_, err := c.SetSession(context.Background(), "tok1", "tok2")
	require.ErrorIs(t, err, errors.ErrResolutionFailed)
}

func TestGetSessionWithoutPair(t *testing.T) {
	c := NewClient("http://unused.invalid", "test-key", zerolog.Nop())
	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGetSessionRefreshesPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			json.NewEncoder(w).Encode(confirmedUser())
		case "/token":
			require.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "tok2", body["refresh_token"])
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "tok3",
				"refresh_token": "tok4",
				"expires_at":    4102444800,
				"user":          confirmedUser(),
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	_, err := c.SetSession(context.Background(), "tok1", "tok2")
	require.NoError(t, err)

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Verified)
	assert.False(t, sess.ExpiresAt.IsZero())

	// The rotated pair is what later calls use.
	pair := c.currentPair()
	require.NotNil(t, pair)
	assert.Equal(t, "tok3", pair.AccessToken)
}

func TestVerifyOtp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "deadbeef", body["token_hash"])
		require.Equal(t, "email", body["type"])
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok1",
			"refresh_token": "tok2",
			"user":          confirmedUser(),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	sess, err := c.VerifyOtp(context.Background(), "deadbeef", "email")
	require.NoError(t, err)
	assert.True(t, sess.Verified)
}

func TestSignOutClearsLocalPairEvenOnRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user" {
			json.NewEncoder(w).Encode(confirmedUser())
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	_, err := c.SetSession(context.Background(), "tok1", "tok2")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	assert.Nil(t, c.currentPair())
}

func TestResendRoutesEmailAndPhone(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resend", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())

	require.NoError(t, c.Resend(context.Background(), "signup", "u@example.com"))
	assert.Equal(t, "u@example.com", got["email"])

	require.NoError(t, c.Resend(context.Background(), "sms", "+6140000000"))
	assert.Equal(t, "+6140000000", got["phone"])
}

func TestSubscribeParsesFeedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events", r.URL.Path)
		require.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "text/event-stream")

		fmt.Fprint(w, "event: USER_UPDATED\n")
		fmt.Fprint(w, "data: {\"user_id\":\"user-1\",\"email_confirmed_at\":\"2026-08-27T10:00:00Z\"}\n\n")
		fmt.Fprint(w, "event: SOMETHING_NEW\n")
		fmt.Fprint(w, "data: {\"user_id\":\"user-1\"}\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zerolog.Nop())
	events, cancel, err := c.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer cancel()

	evt := <-events
	updated, ok := evt.(domain.UserUpdated)
	require.True(t, ok, "expected UserUpdated, got %T", evt)
	assert.True(t, updated.Verified)

	evt = <-events
	unknown, ok := evt.(domain.UnknownEvent)
	require.True(t, ok, "expected UnknownEvent, got %T", evt)
	assert.Equal(t, "SOMETHING_NEW", unknown.Kind)
}
