// Package platform defines the boundary to the remote platform. The
// authentication handshake, inventory listing and trade protocols live behind
// these interfaces; the rest of the module only drives them.
package platform

import (
	"context"
	"fmt"
)

// ErrorKind classifies a failure reported by the platform.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidPassword
	KindAccessDenied
	KindExpired
	KindRateLimited
	KindTimeout
	KindServiceUnavailable
)

var kindNames = map[ErrorKind]string{
	KindUnknown:            "unknown",
	KindInvalidPassword:    "invalid_password",
	KindAccessDenied:       "access_denied",
	KindExpired:            "expired",
	KindRateLimited:        "rate_limited",
	KindTimeout:            "timeout",
	KindServiceUnavailable: "service_unavailable",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseErrorKind maps a wire name back to its kind. Unknown names map to KindUnknown.
func ParseErrorKind(s string) ErrorKind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// Error is a platform failure with its classification.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// NewError builds a classified platform error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// LogOnOptions carries either a resume token or credentials.
type LogOnOptions struct {
	AccountName   string
	Password      string
	TwoFactorCode string
	RefreshToken  string
}

// Resuming reports whether the log-on uses a persisted token.
func (o LogOnOptions) Resuming() bool {
	return o.RefreshToken != ""
}

// OfferStatus is the platform's answer to an offer submission.
type OfferStatus string

const (
	OfferSent    OfferStatus = "sent"
	OfferPending OfferStatus = "pending"
)

// Offer is a submitted exchange offer.
type Offer struct {
	ID     string
	Status OfferStatus
}

// ItemRef points at one asset to include in an offer.
type ItemRef struct {
	AppID     int64  `json:"appid"`
	ContextID int64  `json:"contextid"`
	AssetID   string `json:"assetid"`
}

// Client opens per-account sessions.
type Client interface {
	NewSession(username string) (Session, error)
}

// Session is one account's connection to the platform. Outcomes of LogOn and
// unsolicited changes are delivered on Events; the channel may be closed
// after LogOff.
type Session interface {
	// LogOn starts authentication and returns once the request is issued.
	LogOn(ctx context.Context, opts LogOnOptions) error

	// Events streams log-on outcomes and unsolicited notifications.
	Events() <-chan Event

	// Identity is the platform-assigned identity, empty until logged on.
	Identity() string

	ListItems(ctx context.Context, appID, contextID int64) ([]RawItem, error)
	CreateOffer(ctx context.Context, partnerURL string, items []ItemRef) (*Offer, error)
	ConfirmOffer(ctx context.Context, identitySecret, offerID string) error

	// LogOff terminates the session. It is safe to call more than once.
	LogOff() error
}
