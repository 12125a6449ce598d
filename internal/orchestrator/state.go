package orchestrator

import "time"

// State is a lifecycle state of one account instance.
type State string

const (
	StateIdle            State = "idle"
	StateAuthenticating  State = "authenticating"
	StateAwaitingSession State = "awaiting_session"
	StateOnline          State = "online"
	StateDegraded        State = "degraded"
	StateStopped         State = "stopped"
	StateFailed          State = "failed"
)

// Live reports whether an instance in this state still owns its account.
func (s State) Live() bool {
	switch s {
	case StateAuthenticating, StateAwaitingSession, StateOnline, StateDegraded:
		return true
	}
	return false
}

// Ended reports whether the instance is stopped or failed and may be replaced.
func (s State) Ended() bool {
	return s == StateStopped || s == StateFailed
}

// Status is a point-in-time snapshot of an instance.
type Status struct {
	Account   string    `json:"account"`
	State     State     `json:"state"`
	LastError string    `json:"lastError,omitempty"`
	Attempt   int       `json:"attempt"`
	Identity  string    `json:"identity,omitempty"`
	Challenge string    `json:"challenge,omitempty"` // channel of a pending manual code
	UpdatedAt time.Time `json:"updatedAt"`
}
