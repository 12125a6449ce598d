package model

import "time"

// DefaultSessionTTL is the expiry horizon applied on every session write.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Session is the persisted, resumable log-on material of an account.
// At most one current session exists per account.
type Session struct {
	AccountID    int64     `json:"account_id"`
	RefreshToken string    `json:"-"`
	WebSessionID string    `json:"-"`
	Identity     string    `json:"identity,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Resumable reports whether the session carries a token usable for log-on.
func (s *Session) Resumable(now time.Time) bool {
	return s != nil && s.RefreshToken != "" && !s.Expired(now)
}
