// Package deeplink parses inbound deep-link and universal-link callback
// URLs into credential variants.
package deeplink

import (
	"context"
	"net/url"

	"github.com/rs/zerolog/log"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// MaxURLLength bounds accepted callback URLs. Anything longer is
// rejected before parsing.
const MaxURLLength = 2000

// Extract parses a callback URL and returns exactly one credential
// variant. Priority order, highest first:
//
//  1. session_code: single-use, short-lived, keeps tokens out of URLs
//  2. access_token + refresh_token: deprecated fallback
//  3. token_hash + type: pure email-confirmation path
//  4. none: a plain "return to app" signal
//
// Malformed or oversized URLs fail with no side effects.
func Extract(ctx context.Context, rawURL string) (domain.Credentials, error) {
	if rawURL == "" || len(rawURL) > MaxURLLength {
		log.Ctx(ctx).Warn().Int("url_len", len(rawURL)).Msg("invalid link received")
		return nil, errors.NewInvalidInput(errors.ErrInvalidLink.Error())
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		log.Ctx(ctx).Warn().Int("url_len", len(rawURL)).Msg("invalid link received")
		return nil, errors.NewInvalidInput(errors.ErrInvalidLink.Error())
	}

	params := u.Query()
	// Providers deliver implicit-flow style callbacks in the fragment;
	// merge those in without letting them shadow query parameters.
	if u.Fragment != "" {
		if frag, fragErr := url.ParseQuery(u.Fragment); fragErr == nil {
			for k, v := range frag {
				if _, ok := params[k]; !ok {
					params[k] = v
				}
			}
		}
	}

	if code := params.Get("session_code"); code != "" {
		return domain.SessionCode{Code: code}, nil
	}

	access := params.Get("access_token")
	refresh := params.Get("refresh_token")
	if access != "" && refresh != "" {
		return domain.DirectTokens{AccessToken: access, RefreshToken: refresh}, nil
	}

	hash := params.Get("token_hash")
	otpType := params.Get("type")
	if hash != "" && otpType != "" {
		return domain.OtpHash{TokenHash: hash, Type: otpType}, nil
	}

	return domain.NoCredentials{}, nil
}
