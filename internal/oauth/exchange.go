// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/logging"
)

// exchangeTimeout bounds the outbound token endpoint call.
const exchangeTimeout = 30 * time.Second

// tokenResponse is the standard OAuth 2.0 token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    *int64 `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ExchangeCode exchanges an authorization code for tokens at the
// provider's token endpoint.
func ExchangeCode(ctx context.Context, cfg ProviderConfig, code, redirectURI string) (credentials.Credentials, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)

	logging.Debug().Str("token_url", cfg.TokenURL).Msg("exchanging authorization code")

	resp, err := postForm(ctx, cfg.TokenURL, form)
	if err != nil {
		return credentials.Credentials{}, err
	}
	return parseTokenResponse(resp)
}

// postForm POSTs form-encoded values with Accept: application/json and
// returns the body of a 2xx response.
func postForm(ctx context.Context, tokenURL string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parseTokenResponse decodes the provider response into credentials.
func parseTokenResponse(body []byte) (credentials.Credentials, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return credentials.Credentials{}, fmt.Errorf("parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return credentials.Credentials{}, fmt.Errorf("token response missing access_token")
	}

	creds := credentials.Credentials{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn != nil {
		expires := time.Now().UTC().Add(time.Duration(*tr.ExpiresIn) * time.Second)
		creds.ExpiresAt = &expires
	}
	return creds, nil
}

// RefreshToken exchanges a refresh token for a new access token,
// following §6 of RFC 6749. When the provider omits a rotated refresh
// token, the caller keeps the previous one.
func RefreshToken(ctx context.Context, tokenURL, refreshToken, clientID, clientSecret string) (credentials.Credentials, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if clientID != "" {
		form.Set("client_id", clientID)
	}
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}

	body, err := postForm(ctx, tokenURL, form)
	if err != nil {
		return credentials.Credentials{}, err
	}
	return parseTokenResponse(body)
}
