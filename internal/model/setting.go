package model

import "strconv"

// Well-known setting keys.
const (
	SettingTradeLink  = "trade_link"
	SettingLoginDelay = "login_delay"
	SettingLoginMode  = "login_mode"
)

// Login scheduling modes.
const (
	LoginModeSequential = "sequential-with-delay"
	LoginModeAllAtOnce  = "all-at-once"
)

// DefaultSettings are seeded when the store is opened and the key is absent.
var DefaultSettings = map[string]string{
	SettingTradeLink:  "",
	SettingLoginDelay: "5000",
	SettingLoginMode:  LoginModeSequential,
}

// ValidateSetting checks the values of well-known keys. Other keys accept
// any value.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingLoginMode:
		switch value {
		case LoginModeSequential, LoginModeAllAtOnce, "queue":
			return nil
		}
		return ErrInvalidInput.With("login_mode must be %q or %q", LoginModeSequential, LoginModeAllAtOnce)
	case SettingLoginDelay:
		ms, err := strconv.Atoi(value)
		if err != nil || ms < 0 {
			return ErrInvalidInput.With("login_delay must be a non-negative number of milliseconds")
		}
	}
	return nil
}
