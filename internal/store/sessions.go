package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CreateSession inserts a session row for an external collaborator login.
// The token is bcrypt-hashed before storage rather than kept as a
// plaintext bearer secret.
func (s *Store) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash session token: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (token_hash, user_id, expires_at) VALUES (?, ?, ?)", string(hash), userID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns the session matching a bearer token iff it exists
// and has not yet expired; otherwise ErrNotFound. Verification scans the
// unexpired sessions and compares each hash, since bcrypt hashes are
// salted and can't be looked up by equality.
func (s *Store) GetSession(ctx context.Context, token string) (Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT token_hash, user_id, expires_at FROM sessions WHERE expires_at > ?", time.Now().UTC())
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, userID string
		var expiresAt time.Time
		if err := rows.Scan(&hash, &userID, &expiresAt); err != nil {
			return Session{}, fmt.Errorf("failed to scan session: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			return Session{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
		}
	}
	return Session{}, ErrNotFound
}

// DeleteSession removes a single session, e.g. on logout.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	rows, err := s.db.QueryContext(ctx, "SELECT token_hash FROM sessions")
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	var match string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			rows.Close()
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			match = hash
			break
		}
	}
	rows.Close()
	if match == "" {
		return nil
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", match)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions sweeps every session past its expiry. Returns the number of rows removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
