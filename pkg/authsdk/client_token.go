package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AuthorizationCodeGrant redeems a one-time authorization code for a
// token pair. The code is the nonce the login step confirmed.
func (c *Client) AuthorizationCodeGrant(ctx context.Context, clientID, code string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {clientID},
		"code":       {code},
	}
	return c.tokenRequest(ctx, form)
}

// RefreshGrant rotates a refresh token, returning a fresh pair.
func (c *Client) RefreshGrant(ctx context.Context, clientID, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, form)
}

// CookieTokenGrant runs the cookie-based convenience flow. Session and
// token cookies ride on the client's cookie jar, so callers that want the
// full flow should configure one on HTTPClient.
func (c *Client) CookieTokenGrant(ctx context.Context, clientID string) (*CookieTokenResponse, error) {
	form := url.Values{
		"grant_type": {"cookie_token"},
		"client_id":  {clientID},
	}

	resp, body, err := c.postForm(ctx, form)
	if err != nil {
		return nil, err
	}
	if err := parseErrorResponse(resp, body); err != nil {
		return nil, err
	}

	var out CookieTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("authsdk: decode response: %w", err)
	}
	return &out, nil
}

// Login marks the authorization state behind nonce as authenticated for
// the given subject. Success is a 202 with an empty body.
func (c *Client) Login(ctx context.Context, sub, nonce string) error {
	resp, body, err := c.postJSON(ctx, "/v1/login", LoginRequest{Sub: sub, Nonce: nonce})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusAccepted {
		return parseErrorResponse(resp, body)
	}
	return nil
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	resp, body, err := c.postForm(ctx, form)
	if err != nil {
		return nil, err
	}
	if err := parseErrorResponse(resp, body); err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("authsdk: decode response: %w", err)
	}
	return &out, nil
}
