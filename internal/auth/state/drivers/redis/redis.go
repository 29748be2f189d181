// Package redis is the shared-state driver for multi-instance
// deployments. Records are stored as JSON values with a TTL, and code
// consumption runs inside a WATCH transaction so concurrent redemptions
// of the same nonce cannot both win.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/state"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "keygate:state:"

// evictionSlack keeps entries past their exp so reads of a just-expired
// state report ErrExpired rather than ErrNotFound.
const evictionSlack = 5 * time.Minute

// Store implements state.Store on top of a redis client.
type Store struct {
	client *goredis.Client
}

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: connect: %w", err)
	}
	return &Store{client: client}, nil
}

func key(nonce string) string { return keyPrefix + nonce }

func (s *Store) Create(ctx context.Context, nonce string, st domain.AuthorizationState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, key(nonce), payload, ttl(st)).Result()
	if err != nil {
		return fmt.Errorf("redis: create state: %w", err)
	}
	if !ok {
		return state.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Read(ctx context.Context, nonce string) (domain.AuthorizationState, error) {
	raw, err := s.client.Get(ctx, key(nonce)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.AuthorizationState{}, state.ErrNotFound
	}
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("redis: read state: %w", err)
	}

	var st domain.AuthorizationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("redis: unmarshal state: %w", err)
	}
	return st, nil
}

func (s *Store) Update(ctx context.Context, nonce string, st domain.AuthorizationState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal state: %w", err)
	}

	ok, err := s.client.SetXX(ctx, key(nonce), payload, ttl(st)).Result()
	if err != nil {
		return fmt.Errorf("redis: update state: %w", err)
	}
	if !ok {
		return state.ErrNotFound
	}
	return nil
}

func (s *Store) ConsumeCode(ctx context.Context, nonce string, now int64) (domain.AuthorizationState, error) {
	var result domain.AuthorizationState

	txn := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key(nonce)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return state.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis: read state: %w", err)
		}

		var st domain.AuthorizationState
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("redis: unmarshal state: %w", err)
		}

		switch {
		case !st.LoggedIn:
			return state.ErrNotLoggedIn
		case st.Expired(now):
			return state.ErrExpired
		case st.CodeUsed():
			return state.ErrCodeUsed
		}

		st.CodeUsedAt = now
		payload, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("redis: marshal state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key(nonce), payload, ttl(st))
			return nil
		})
		if err != nil {
			return err
		}

		result = st
		return nil
	}

	// Retry a bounded number of times on WATCH conflicts. A conflict on
	// the same nonce means another redemption got there first, and the
	// retry will then observe the used flag.
	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txn, key(nonce))
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.AuthorizationState{}, err
		}
		return result, nil
	}
	return domain.AuthorizationState{}, state.ErrCodeUsed
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func ttl(st domain.AuthorizationState) time.Duration {
	until := time.Until(time.Unix(st.ExpiresAt, 0))
	if until <= 0 {
		until = 0
	}
	return until + evictionSlack
}
