package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/state"
	"github.com/arcadialab/keygate/internal/auth/state/drivers/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "state.db")
	s, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newState(loggedIn bool, ttl time.Duration) domain.AuthorizationState {
	return domain.AuthorizationState{
		Issuer:    "https://auth.example.com",
		LoggedIn:  loggedIn,
		Subject:   "alice",
		Audience:  []string{"api"},
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
}

func TestCreateReadUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	st := newState(false, time.Hour)
	require.NoError(t, s.Create(ctx, "n1", st))
	assert.ErrorIs(t, s.Create(ctx, "n1", st), state.ErrAlreadyExists)

	got, err := s.Read(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	got.LoggedIn = true
	got.Subject = "bob"
	got.Audience = []string{"api", "admin"}
	require.NoError(t, s.Update(ctx, "n1", got))

	got2, err := s.Read(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, got, got2)

	_, err = s.Read(ctx, "missing")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "missing", st), state.ErrNotFound)
}

func TestConsumeCode(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, s.Create(ctx, "n1", newState(true, time.Hour)))

	got, err := s.ConsumeCode(ctx, "n1", now)
	require.NoError(t, err)
	assert.Equal(t, now, got.CodeUsedAt)

	_, err = s.ConsumeCode(ctx, "n1", now)
	assert.ErrorIs(t, err, state.ErrCodeUsed)
}

func TestConsumeCodePreconditions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	_, err := s.ConsumeCode(ctx, "missing", now)
	assert.ErrorIs(t, err, state.ErrNotFound)

	require.NoError(t, s.Create(ctx, "anon", newState(false, time.Hour)))
	_, err = s.ConsumeCode(ctx, "anon", now)
	assert.ErrorIs(t, err, state.ErrNotLoggedIn)

	expired := newState(true, time.Hour)
	expired.ExpiresAt = now - 10
	require.NoError(t, s.Create(ctx, "old", expired))
	_, err = s.ConsumeCode(ctx, "old", now)
	assert.ErrorIs(t, err, state.ErrExpired)
}

func TestConsumeCodeSingleWinner(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, s.Create(ctx, "race", newState(true, time.Hour)))

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeCode(ctx, "race", now); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one concurrent redemption must win")
}

func TestDeleteExpired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, s.Create(ctx, "live", newState(true, time.Hour)))

	old := newState(true, time.Hour)
	old.ExpiresAt = now - 60
	require.NoError(t, s.Create(ctx, "old", old))

	// Boundary row: expires exactly now, still redeemable, must survive.
	edge := newState(true, time.Hour)
	edge.ExpiresAt = now
	require.NoError(t, s.Create(ctx, "edge", edge))

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Read(ctx, "old")
	assert.ErrorIs(t, err, state.ErrNotFound)

	_, err = s.Read(ctx, "live")
	assert.NoError(t, err)
	_, err = s.Read(ctx, "edge")
	assert.NoError(t, err)
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}
