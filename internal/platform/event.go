package platform

// EventType enumerates what a Session can report.
type EventType int

const (
	EventLoggedOn EventType = iota + 1
	EventWebSession
	EventRefreshToken
	EventError
	EventChallenge
	EventDisconnected
	EventNewItems
	EventNewOffer
)

var eventNames = map[EventType]string{
	EventLoggedOn:     "logged_on",
	EventWebSession:   "web_session",
	EventRefreshToken: "refresh_token",
	EventError:        "error",
	EventChallenge:    "challenge",
	EventDisconnected: "disconnected",
	EventNewItems:     "new_items",
	EventNewOffer:     "new_offer",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseEventType maps a wire name to its type; ok is false for unknown names.
func ParseEventType(s string) (EventType, bool) {
	for t, name := range eventNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Event is a single notification from a Session. Only the fields relevant to
// Type are set.
type Event struct {
	Type         EventType
	Identity     string
	SessionID    string
	RefreshToken string
	Err          *Error
	Channel      string
	Reason       string
	Count        int
	OfferID      string
}
