package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"botfleet-api/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// GetSession returns the account's unexpired session or nil.
func (s *SQLStore) GetSession(ctx context.Context, accountID int64) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT account_id, refresh_token, web_session_id, identity, updated_at, expires_at
		FROM sessions WHERE account_id = ? AND expires_at > ?`

	var sess model.Session
	var updated, expires int64
	err := s.queryRow(ctx, query, accountID, toMillis(s.now())).
		Scan(&sess.AccountID, &sess.RefreshToken, &sess.WebSessionID, &sess.Identity, &updated, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess.UpdatedAt = fromMillis(updated)
	sess.ExpiresAt = fromMillis(expires)
	return &sess, nil
}

// SaveSession replaces the account's session.
func (s *SQLStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess.RefreshToken == "" {
		return model.ErrInvalidInput.With("refresh token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess.UpdatedAt = fromMillis(toMillis(now))
	sess.ExpiresAt = fromMillis(toMillis(sessionExpiry(sess.RefreshToken, now, s.ttl)))

	query := s.dialect.upsert("sessions",
		[]string{"account_id"},
		[]string{"refresh_token", "web_session_id", "identity", "updated_at", "expires_at"})
	_, err := s.exec(ctx, query, sess.AccountID, sess.RefreshToken, sess.WebSessionID, sess.Identity,
		toMillis(sess.UpdatedAt), toMillis(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession removes the account's session, if any.
func (s *SQLStore) DeleteSession(ctx context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.exec(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry has passed.
func (s *SQLStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("removed expired sessions", "count", n)
	}
	return n, nil
}

// ListActiveSessions returns the usernames with an unexpired session.
func (s *SQLStore) ListActiveSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `SELECT a.username FROM sessions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.expires_at > ? ORDER BY a.username`, toMillis(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	usernames := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

// sessionExpiry caps now+ttl by the exp claim of the refresh token when the
// token is a JWT. The signature is not checked; only the platform can.
func sessionExpiry(token string, now time.Time, ttl time.Duration) time.Time {
	expiry := now.Add(ttl)

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return expiry
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expiry) {
		return claims.ExpiresAt.Time
	}
	return expiry
}
