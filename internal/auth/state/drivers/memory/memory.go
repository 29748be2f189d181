// Package memory is the in-process state driver, backed by go-cache.
// Suitable for development and single-instance deployments; entries are
// lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/state"
	gocache "github.com/patrickmn/go-cache"
)

// evictionSlack keeps entries around a little past their exp so reads of
// a just-expired state still return ErrExpired rather than ErrNotFound.
const evictionSlack = 5 * time.Minute

// Store implements state.Store in memory.
type Store struct {
	cache *gocache.Cache

	// mu serialises ConsumeCode's check-and-set. go-cache is safe for
	// concurrent access but has no compare-and-swap.
	mu sync.Mutex
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func (s *Store) Create(_ context.Context, nonce string, st domain.AuthorizationState) error {
	if err := s.cache.Add(nonce, st, s.ttl(st)); err != nil {
		return state.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Read(_ context.Context, nonce string) (domain.AuthorizationState, error) {
	v, ok := s.cache.Get(nonce)
	if !ok {
		return domain.AuthorizationState{}, state.ErrNotFound
	}
	return v.(domain.AuthorizationState), nil
}

func (s *Store) Update(_ context.Context, nonce string, st domain.AuthorizationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(nonce); !ok {
		return state.ErrNotFound
	}
	s.cache.Set(nonce, st, s.ttl(st))
	return nil
}

func (s *Store) ConsumeCode(_ context.Context, nonce string, now int64) (domain.AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(nonce)
	if !ok {
		return domain.AuthorizationState{}, state.ErrNotFound
	}
	st := v.(domain.AuthorizationState)

	switch {
	case !st.LoggedIn:
		return domain.AuthorizationState{}, state.ErrNotLoggedIn
	case st.Expired(now):
		return domain.AuthorizationState{}, state.ErrExpired
	case st.CodeUsed():
		return domain.AuthorizationState{}, state.ErrCodeUsed
	}

	st.CodeUsedAt = now
	s.cache.Set(nonce, st, s.ttl(st))
	return st, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.cache.Flush()
	return nil
}

func (s *Store) ttl(st domain.AuthorizationState) time.Duration {
	until := time.Until(time.Unix(st.ExpiresAt, 0))
	if until <= 0 {
		until = 0
	}
	return until + evictionSlack
}
