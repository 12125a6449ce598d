package orchestrator

import (
	"errors"
	"time"

	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
)

// ReconnectPolicy decides what an instance does after an unsolicited disconnect.
type ReconnectPolicy string

const (
	// ReconnectPlatform waits in degraded for the platform's own reconnect.
	ReconnectPlatform ReconnectPolicy = "platform"
	// ReconnectReauthenticate starts a fresh attempt after one backoff step.
	ReconnectReauthenticate ReconnectPolicy = "reauthenticate"
)

// Config holds the lifecycle policy.
type Config struct {
	AuthTimeout          time.Duration
	MaxAttempts          int
	RateLimitCooldown    time.Duration
	BackoffStep          time.Duration
	CredentialRetryDelay time.Duration
	SettleDelay          time.Duration
	NewItemsDelay        time.Duration
	ReconnectPolicy      ReconnectPolicy
	StopTimeout          time.Duration
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		AuthTimeout:          30 * time.Second,
		MaxAttempts:          3,
		RateLimitCooldown:    60 * time.Second,
		BackoffStep:          5 * time.Second,
		CredentialRetryDelay: 3 * time.Second,
		SettleDelay:          3 * time.Second,
		NewItemsDelay:        3 * time.Second,
		ReconnectPolicy:      ReconnectPlatform,
		StopTimeout:          5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = d.RateLimitCooldown
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = d.BackoffStep
	}
	if c.CredentialRetryDelay <= 0 {
		c.CredentialRetryDelay = d.CredentialRetryDelay
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.NewItemsDelay < 0 {
		c.NewItemsDelay = 0
	}
	if c.ReconnectPolicy == "" {
		c.ReconnectPolicy = d.ReconnectPolicy
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	return c
}

// failureClass groups platform error kinds by how they are retried.
type failureClass int

const (
	classUnknown failureClass = iota
	classCredential
	classRateLimited
	classTransient
)

func (c failureClass) String() string {
	switch c {
	case classCredential:
		return "credential"
	case classRateLimited:
		return "rate_limited"
	case classTransient:
		return "transient"
	}
	return "unknown"
}

func classify(kind platform.ErrorKind) failureClass {
	switch kind {
	case platform.KindInvalidPassword, platform.KindAccessDenied, platform.KindExpired:
		return classCredential
	case platform.KindRateLimited:
		return classRateLimited
	case platform.KindTimeout, platform.KindServiceUnavailable:
		return classTransient
	}
	return classUnknown
}

// retryDelay is the wait before the attempt following a failed attempt n (1-based).
func (c Config) retryDelay(class failureClass, n int) time.Duration {
	switch class {
	case classCredential:
		return c.CredentialRetryDelay
	case classRateLimited:
		return c.RateLimitCooldown
	default:
		return time.Duration(max(n, 1)) * c.BackoffStep
	}
}

// classError wraps a platform failure in the matching sentinel.
func classError(class failureClass, err error) error {
	var sentinel *model.Error
	switch class {
	case classCredential:
		sentinel = model.ErrCredential
	case classRateLimited:
		sentinel = model.ErrRateLimited
	case classTransient:
		sentinel = model.ErrTransient
	default:
		return err
	}
	return sentinel.With("%v", err)
}

// asPlatformError converts any error into a classified platform error.
// Unclassified errors from the transport count as unavailability.
func asPlatformError(err error) *platform.Error {
	var perr *platform.Error
	if errors.As(err, &perr) {
		return perr
	}
	return platform.NewError(platform.KindServiceUnavailable, err.Error())
}
