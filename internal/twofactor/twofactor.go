// Package twofactor derives one-time log-on codes from an account's shared secret.
package twofactor

import (
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Generator produces a one-time code for a shared secret at a point in time.
type Generator interface {
	Code(sharedSecret string, at time.Time) (string, error)
}

// TOTP generates RFC 6238 codes with a 30 second step and six digits.
// Shared secrets may be given base64 encoded (as exported by mobile
// authenticators) or base32 encoded.
type TOTP struct {
	Period uint
	Digits otp.Digits
}

var _ Generator = (*TOTP)(nil)

// NewTOTP returns a generator with the platform defaults.
func NewTOTP() *TOTP {
	return &TOTP{Period: 30, Digits: otp.DigitsSix}
}

// Code returns the code valid at the given instant.
func (g *TOTP) Code(sharedSecret string, at time.Time) (string, error) {
	secret, err := normalizeSecret(sharedSecret)
	if err != nil {
		return "", err
	}

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    g.Period,
		Digits:    g.Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}

var base32Secret = regexp.MustCompile(`^[A-Z2-7]+=*$`)

// normalizeSecret returns an unpadded base32 secret accepted by totp.
func normalizeSecret(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty shared secret")
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	if base32Secret.MatchString(s) {
		trimmed := strings.TrimRight(s, "=")
		if _, err := enc.DecodeString(trimmed); err == nil {
			return trimmed, nil
		}
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("shared secret is neither base32 nor base64")
	}
	return enc.EncodeToString(raw), nil
}
