package model

import (
	"strings"
	"time"
)

// Account is the identity record of one automated account.
type Account struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Password       string    `json:"-"`
	Email          string    `json:"email,omitempty"`
	SharedSecret   string    `json:"-"`
	IdentitySecret string    `json:"-"`
	RecoveryCode   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasTwoFactor reports whether one-time codes can be generated for the account.
func (a *Account) HasTwoFactor() bool {
	return strings.TrimSpace(a.SharedSecret) != ""
}

// CanConfirm reports whether pending offers can be confirmed automatically.
func (a *Account) CanConfirm() bool {
	return strings.TrimSpace(a.IdentitySecret) != ""
}

// Validate checks the fields required to create an account.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return ErrInvalidInput.With("username is required")
	}
	if a.Password == "" {
		return ErrInvalidInput.With("password is required")
	}
	return nil
}

// AccountUpdate is a partial replacement: nil fields are left untouched.
type AccountUpdate struct {
	Password       *string `json:"password,omitempty"`
	Email          *string `json:"email,omitempty"`
	SharedSecret   *string `json:"shared_secret,omitempty"`
	IdentitySecret *string `json:"identity_secret,omitempty"`
	RecoveryCode   *string `json:"recovery_code,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.Password == nil && u.Email == nil && u.SharedSecret == nil &&
		u.IdentitySecret == nil && u.RecoveryCode == nil
}

// TouchesCredentials reports whether the update changes anything used to log on.
func (u AccountUpdate) TouchesCredentials() bool {
	return u.Password != nil || u.SharedSecret != nil
}

// Apply copies the non-nil fields onto a.
func (u AccountUpdate) Apply(a *Account) {
	if u.Password != nil {
		a.Password = *u.Password
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.SharedSecret != nil {
		a.SharedSecret = *u.SharedSecret
	}
	if u.IdentitySecret != nil {
		a.IdentitySecret = *u.IdentitySecret
	}
	if u.RecoveryCode != nil {
		a.RecoveryCode = *u.RecoveryCode
	}
}
