package gateway

import "botfleet-api/internal/platform"

type logOnRequest struct {
	Account       string `json:"account"`
	Password      string `json:"password,omitempty"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
}

type logOnResponse struct {
	ID string `json:"id"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error wireError `json:"error"`
}

// wireEvent is one frame of the session event stream.
type wireEvent struct {
	Type         string     `json:"type"`
	Identity     string     `json:"identity,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	Error        *wireError `json:"error,omitempty"`
	Channel      string     `json:"channel,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Count        int        `json:"count,omitempty"`
	OfferID      string     `json:"offerId,omitempty"`
}

func (w wireEvent) toEvent() (platform.Event, bool) {
	typ, ok := platform.ParseEventType(w.Type)
	if !ok {
		return platform.Event{}, false
	}
	ev := platform.Event{
		Type:         typ,
		Identity:     w.Identity,
		SessionID:    w.SessionID,
		RefreshToken: w.RefreshToken,
		Channel:      w.Channel,
		Reason:       w.Reason,
		Count:        w.Count,
		OfferID:      w.OfferID,
	}
	if w.Error != nil {
		ev.Err = platform.NewError(platform.ParseErrorKind(w.Error.Kind), w.Error.Message)
	}
	return ev, true
}

type inventoryResponse struct {
	Items []platform.RawItem `json:"items"`
}

type offerRequest struct {
	Partner string             `json:"partner"`
	Items   []platform.ItemRef `json:"items"`
}

type offerResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type confirmRequest struct {
	IdentitySecret string `json:"identitySecret"`
}
