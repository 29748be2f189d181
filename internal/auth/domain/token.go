package domain

import "time"

// Token type values for the token_type field of a token response.
const (
	TokenTypeBearer = "Bearer"
	TokenTypeDPoP   = "DPoP"
)

// TokenPair is the result of a successful token grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string

	// TokenType is "DPoP" when the refresh token is key-bound,
	// "Bearer" otherwise.
	TokenType string

	// ExpiresIn is the access token lifetime.
	ExpiresIn time.Duration
}
