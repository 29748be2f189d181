// Package service implements the token lifecycle state machine: the
// conversion of authorization codes, session tokens, and refresh tokens
// into the next token in the chain, under single-use, expiry, issuer,
// and key-binding rules.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/state"
	"github.com/arcadialab/keygate/pkg/idx"
	"github.com/arcadialab/keygate/pkg/jwtx"
	"github.com/arcadialab/keygate/pkg/slogx"
)

var (
	ErrInvalidGrant       = errors.New("invalid grant")
	ErrNotLoggedIn        = errors.New("login has not been completed")
	ErrCodeAlreadyUsed    = errors.New("code has already been used")
	ErrGrantExpired       = errors.New("grant has expired")
	ErrKeyBindingMismatch = errors.New("token is bound to a different key")
	ErrAlreadyLoggedIn    = errors.New("session is already logged in")
	ErrStateUnavailable   = errors.New("state store unavailable")
)

// LifecycleService mints, verifies, and rotates the token chain. It owns
// no state of its own: authorization records live behind the state.Store
// and are never cached across requests.
type LifecycleService struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	States   state.Store

	Issuer   string
	Audience []string

	// RequireDPoP gates the key-binding checks. When false, presented
	// thumbprints still bind freshly minted refresh tokens but rotation
	// does not enforce a match.
	RequireDPoP bool

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
	StateTTL   time.Duration

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (s *LifecycleService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ExchangeAuthorizationCode implements the authorization_code grant:
// redeem a one-time code for a refresh token plus derived access token.
// The code consumption is atomic in the store, so a retried redemption
// fails ErrCodeAlreadyUsed even under concurrent requests.
func (s *LifecycleService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, code, jkt string,
) (*domain.TokenPair, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	if code == "" || clientID == "" {
		return nil, ErrInvalidGrant
	}

	st, err := s.States.ConsumeCode(ctx, code, now.Unix())
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNotFound):
			return nil, ErrInvalidGrant
		case errors.Is(err, state.ErrNotLoggedIn):
			return nil, ErrNotLoggedIn
		case errors.Is(err, state.ErrExpired):
			return nil, ErrGrantExpired
		case errors.Is(err, state.ErrCodeUsed):
			l.Info("authorization code replayed", slog.String("client_id", clientID))
			return nil, ErrCodeAlreadyUsed
		default:
			l.Error("state store failure during code redemption", slog.Any("err", err))
			return nil, ErrStateUnavailable
		}
	}

	if st.Issuer != s.Issuer {
		return nil, ErrInvalidGrant
	}

	refresh := jwtx.NewClaims(
		jwtx.TokenTypeRefresh, s.Issuer, st.Subject, st.Audience, clientID, s.RefreshTTL, now,
	)
	if jkt != "" {
		refresh.Confirmation = &jwtx.Confirmation{JKT: jkt}
	}

	return s.mintPair(refresh, now)
}

// RotateRefreshToken implements the refresh_token grant: verify the old
// token, check the key binding, and issue a brand-new refresh token with
// a fresh identifier and timestamps plus a derived access token. The old
// token is not recorded as spent; it is superseded, not revoked.
func (s *LifecycleService) RotateRefreshToken(
	ctx context.Context,
	refreshToken, jkt string,
) (*domain.TokenPair, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	claims, err := s.verifyToken(refreshToken, jwtx.TokenTypeRefresh, now)
	if err != nil {
		return nil, err
	}

	if s.RequireDPoP && claims.JKT() != jkt {
		l.Info("refresh rotation key binding mismatch", slog.String("client_id", claims.ClientID))
		return nil, ErrKeyBindingMismatch
	}

	// Fresh jti, iat, and exp; subject, audience, client, and binding
	// carry forward unchanged.
	next := jwtx.NewClaims(
		jwtx.TokenTypeRefresh, s.Issuer, claims.Subject, claims.Audience, claims.ClientID, s.RefreshTTL, now,
	)
	next.Confirmation = claims.Confirmation

	return s.mintPair(next, now)
}

// ExchangeSessionToken converts a session token into a refresh token plus
// derived access token. The session token's own signature is verified
// before anything in it is trusted, then the referenced state must still
// be logged in and carry a matching issuer.
func (s *LifecycleService) ExchangeSessionToken(
	ctx context.Context,
	sessionToken, jkt string,
) (*domain.TokenPair, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	claims, err := s.verifyToken(sessionToken, jwtx.TokenTypeSession, now)
	if err != nil {
		return nil, err
	}
	if claims.Nonce == "" {
		return nil, ErrInvalidGrant
	}

	st, err := s.States.Read(ctx, claims.Nonce)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		l.Error("state store failure during session exchange", slog.Any("err", err))
		return nil, ErrStateUnavailable
	}

	if !st.LoggedIn {
		return nil, ErrNotLoggedIn
	}
	if st.Issuer != s.Issuer {
		return nil, ErrInvalidGrant
	}

	refresh := jwtx.NewClaims(
		jwtx.TokenTypeRefresh, s.Issuer, st.Subject, st.Audience, claims.ClientID, s.RefreshTTL, now,
	)
	if jkt != "" {
		refresh.Confirmation = &jwtx.Confirmation{JKT: jkt}
	}

	return s.mintPair(refresh, now)
}

// NewSession mints an unauthenticated authorization state and a session
// token pointing at it. The returned nonce is both the state key and the
// authorization code the caller will redeem after login.
func (s *LifecycleService) NewSession(ctx context.Context, clientID string) (token, nonce string, err error) {
	now := s.now()
	nonce = idx.New().String()

	st := domain.AuthorizationState{
		Issuer:    s.Issuer,
		LoggedIn:  false,
		ExpiresAt: now.Add(s.StateTTL).Unix(),
	}
	if err := s.States.Create(ctx, nonce, st); err != nil {
		slogx.FromContext(ctx).Error("state store failure creating session", slog.Any("err", err))
		return "", "", ErrStateUnavailable
	}

	claims := jwtx.NewClaims(
		jwtx.TokenTypeSession, s.Issuer, "", nil, clientID, s.SessionTTL, now,
	)
	claims.Nonce = nonce

	token, err = s.Signer.Sign(claims)
	if err != nil {
		return "", "", err
	}
	return token, nonce, nil
}

// Login marks the state behind nonce as authenticated for the subject and
// extends its lifetime, arming the nonce as a redeemable code.
func (s *LifecycleService) Login(ctx context.Context, sub, nonce string) error {
	now := s.now()
	l := slogx.FromContext(ctx)

	if sub == "" || nonce == "" {
		return ErrInvalidGrant
	}

	st, err := s.States.Read(ctx, nonce)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return ErrInvalidGrant
		}
		l.Error("state store failure during login", slog.Any("err", err))
		return ErrStateUnavailable
	}

	if st.LoggedIn {
		return ErrAlreadyLoggedIn
	}
	if st.Expired(now.Unix()) {
		return ErrGrantExpired
	}

	st.LoggedIn = true
	st.Subject = sub
	st.Audience = s.Audience
	st.ExpiresAt = now.Add(s.StateTTL).Unix()

	if err := s.States.Update(ctx, nonce, st); err != nil {
		l.Error("state store failure saving login", slog.Any("err", err))
		return ErrStateUnavailable
	}

	l.Info("login completed", slog.String("sub", sub))
	return nil
}

// CookieResult is the outcome of the cookie_token grant.
type CookieResult struct {
	// LoggedIn is false when a fresh unauthenticated session was minted.
	LoggedIn bool

	// Nonce and SessionToken are set only on the fresh-session path.
	Nonce        string
	SessionToken string

	// Pair is set only on the logged-in path.
	Pair *domain.TokenPair
}

// CookieGrant runs the cookie-based convenience flow. With no cookies it
// mints a new session; with a refresh cookie it rotates; with only a
// session cookie it exchanges the session for a first refresh token.
func (s *LifecycleService) CookieGrant(
	ctx context.Context,
	clientID, sessionToken, refreshToken, jkt string,
) (*CookieResult, error) {
	if sessionToken == "" && refreshToken == "" {
		token, nonce, err := s.NewSession(ctx, clientID)
		if err != nil {
			return nil, err
		}
		return &CookieResult{LoggedIn: false, Nonce: nonce, SessionToken: token}, nil
	}

	var (
		pair *domain.TokenPair
		err  error
	)
	if refreshToken != "" {
		pair, err = s.RotateRefreshToken(ctx, refreshToken, jkt)
	} else {
		pair, err = s.ExchangeSessionToken(ctx, sessionToken, jkt)
	}
	if err != nil {
		return nil, err
	}

	return &CookieResult{LoggedIn: true, Pair: pair}, nil
}

// verifyToken parses and verifies a token of the expected type at the
// given instant, mapping verification failures onto grant errors.
func (s *LifecycleService) verifyToken(token, tokenType string, now time.Time) (*jwtx.Claims, error) {
	if token == "" {
		return nil, ErrInvalidGrant
	}

	claims, err := s.Verifier.VerifyAt(token, now)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return nil, ErrGrantExpired
		}
		return nil, ErrInvalidGrant
	}

	if err := claims.ValidateType(tokenType); err != nil {
		return nil, ErrInvalidGrant
	}
	return claims, nil
}

// mintPair signs the refresh claims and derives the matching access
// token: same subject, audience, client, and binding, fresh identifier,
// access lifetime, signed with the access-token header profile.
func (s *LifecycleService) mintPair(refresh jwtx.Claims, now time.Time) (*domain.TokenPair, error) {
	refreshToken, err := s.Signer.Sign(refresh)
	if err != nil {
		return nil, err
	}

	access := jwtx.NewClaims(
		jwtx.TokenTypeAccess, s.Issuer, refresh.Subject, refresh.Audience, refresh.ClientID, s.AccessTTL, now,
	)
	access.Confirmation = refresh.Confirmation

	accessToken, err := s.Signer.SignAccess(access)
	if err != nil {
		return nil, err
	}

	tokenType := domain.TokenTypeBearer
	if refresh.Confirmation != nil {
		tokenType = domain.TokenTypeDPoP
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		ExpiresIn:    s.AccessTTL,
	}, nil
}
