// Package domain holds the core types of the token lifecycle: the
// authorization state record and the token pair handed back to clients.
package domain

// AuthorizationState is the record behind a nonce. The nonce doubles as
// the authorization code (redeemed once after login) and the session
// handle (referenced by session tokens). Timestamps are unix seconds.
type AuthorizationState struct {
	// Issuer that minted the state. Redemption requires an exact match.
	Issuer string `json:"iss"`

	// LoggedIn flips to true when the login step confirms the subject.
	LoggedIn bool `json:"logged_in"`

	// Subject and Audience are attached at login time.
	Subject  string   `json:"sub,omitempty"`
	Audience []string `json:"aud,omitempty"`

	// ExpiresAt bounds the state's lifetime.
	ExpiresAt int64 `json:"exp"`

	// CodeUsedAt records the instant the code was redeemed. Zero means
	// unused. Once set, redemption is permanently refused.
	CodeUsedAt int64 `json:"code_used_at,omitempty"`
}

// Expired reports whether the state has expired at the given unix second.
// A state whose exp equals now is still valid.
func (s *AuthorizationState) Expired(now int64) bool {
	return s.ExpiresAt < now
}

// CodeUsed reports whether the authorization code has been redeemed.
func (s *AuthorizationState) CodeUsed() bool {
	return s.CodeUsedAt != 0
}
