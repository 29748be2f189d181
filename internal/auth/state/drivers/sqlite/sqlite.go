// Package sqlite is the file-backed state driver for single-instance
// deployments that must survive restarts. Code consumption is a single
// conditional UPDATE, so the one-time-use guarantee rides on sqlite's
// own write serialisation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/arcadialab/keygate/internal/auth/domain"
	"github.com/arcadialab/keygate/internal/auth/state"
	_ "modernc.org/sqlite"
)

// Store implements state.Store on a sqlite database file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dsn.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// modernc sqlite serialises writes; a single connection avoids
	// SQLITE_BUSY under concurrent redemptions.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Create(ctx context.Context, nonce string, st domain.AuthorizationState) error {
	aud, err := marshalAudience(st.Audience)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO authorization_states (nonce, issuer, logged_in, subject, audience, expires_at, code_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nonce, st.Issuer, st.LoggedIn, st.Subject, aud, st.ExpiresAt, st.CodeUsedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return state.ErrAlreadyExists
		}
		return fmt.Errorf("sqlite: create state: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, nonce string) (domain.AuthorizationState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT issuer, logged_in, subject, audience, expires_at, code_used_at
		FROM authorization_states WHERE nonce = ?`, nonce)
	return scanState(row)
}

func (s *Store) Update(ctx context.Context, nonce string, st domain.AuthorizationState) error {
	aud, err := marshalAudience(st.Audience)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE authorization_states
		SET issuer = ?, logged_in = ?, subject = ?, audience = ?, expires_at = ?, code_used_at = ?
		WHERE nonce = ?`,
		st.Issuer, st.LoggedIn, st.Subject, aud, st.ExpiresAt, st.CodeUsedAt, nonce,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update state: %w", err)
	}
	if n == 0 {
		return state.ErrNotFound
	}
	return nil
}

func (s *Store) ConsumeCode(ctx context.Context, nonce string, now int64) (domain.AuthorizationState, error) {
	// The WHERE clause re-checks every precondition, so losing a race
	// just means zero rows affected.
	res, err := s.db.ExecContext(ctx, `
		UPDATE authorization_states
		SET code_used_at = ?
		WHERE nonce = ? AND logged_in = 1 AND expires_at >= ? AND code_used_at = 0`,
		now, nonce, now,
	)
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("sqlite: consume code: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("sqlite: consume code: %w", err)
	}

	if n == 1 {
		return s.Read(ctx, nonce)
	}

	// Nothing matched; read the row back to report why.
	st, err := s.Read(ctx, nonce)
	if err != nil {
		return domain.AuthorizationState{}, err
	}
	switch {
	case !st.LoggedIn:
		return domain.AuthorizationState{}, state.ErrNotLoggedIn
	case st.Expired(now):
		return domain.AuthorizationState{}, state.ErrExpired
	default:
		return domain.AuthorizationState{}, state.ErrCodeUsed
	}
}

// DeleteExpired removes states whose lifetime has fully lapsed. Unlike
// the cache-backed drivers sqlite has no TTL of its own, so operators
// run this periodically to keep the file from growing unbounded.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM authorization_states WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanState(row *sql.Row) (domain.AuthorizationState, error) {
	var st domain.AuthorizationState
	var aud string

	err := row.Scan(&st.Issuer, &st.LoggedIn, &st.Subject, &aud, &st.ExpiresAt, &st.CodeUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorizationState{}, state.ErrNotFound
	}
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("sqlite: scan state: %w", err)
	}

	if err := json.Unmarshal([]byte(aud), &st.Audience); err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("sqlite: decode audience: %w", err)
	}
	return st, nil
}

func marshalAudience(aud []string) (string, error) {
	if aud == nil {
		aud = []string{}
	}
	b, err := json.Marshal(aud)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode audience: %w", err)
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	// modernc/sqlite reports constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
