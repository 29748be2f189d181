// Package state defines the keyed store for authorization state records.
// Concrete drivers (memory, redis, sqlite) implement Store; the lifecycle
// engine only ever touches state through this interface and never caches
// a record across requests.
package state

import (
	"context"
	"errors"

	"github.com/arcadialab/keygate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("state: not found")
	ErrAlreadyExists = errors.New("state: already exists")

	// ErrCodeUsed is returned by ConsumeCode when the code was already
	// redeemed, including when a concurrent redemption won the race.
	ErrCodeUsed = errors.New("state: code already used")

	// ErrNotLoggedIn is returned by ConsumeCode when the state has not
	// been confirmed by the login step.
	ErrNotLoggedIn = errors.New("state: not logged in")

	// ErrExpired is returned by ConsumeCode when the state is expired.
	ErrExpired = errors.New("state: expired")
)

// Store is the data access interface for authorization states, keyed by
// nonce. Drivers enforce the atomicity of ConsumeCode; everything else is
// plain CRUD.
type Store interface {
	// Create inserts a new state. Fails with ErrAlreadyExists if the
	// nonce is taken.
	Create(ctx context.Context, nonce string, s domain.AuthorizationState) error

	// Read returns the state for a nonce, or ErrNotFound.
	Read(ctx context.Context, nonce string) (domain.AuthorizationState, error)

	// Update overwrites the state for a nonce, or ErrNotFound.
	Update(ctx context.Context, nonce string, s domain.AuthorizationState) error

	// ConsumeCode atomically marks the code used at the given unix second
	// and returns the resulting state. The check-and-set is a single
	// atomic step per driver, so exactly one of any concurrent redemptions
	// succeeds; the rest get ErrCodeUsed. States that are missing, not
	// logged in, or expired fail with the matching sentinel error.
	ConsumeCode(ctx context.Context, nonce string, now int64) (domain.AuthorizationState, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
