package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"botfleet-api/internal/platform"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Session implements platform.Session for one gateway session.
type Session struct {
	client   *Client
	username string
	logger   *log.Logger

	mu       sync.Mutex
	id       string
	identity string
	conn     *websocket.Conn

	events  chan platform.Event
	done    chan struct{}
	offOnce sync.Once
}

func (s *Session) path(suffix string) (string, error) {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if id == "" {
		return "", platform.NewError(platform.KindExpired, "session is not logged on")
	}
	return "/v1/sessions/" + url.PathEscape(id) + suffix, nil
}

// LogOn creates the gateway session and attaches to its event stream.
func (s *Session) LogOn(ctx context.Context, opts platform.LogOnOptions) error {
	select {
	case <-s.done:
		return platform.NewError(platform.KindExpired, "session was logged off")
	default:
	}

	var resp logOnResponse
	err := s.client.do(ctx, http.MethodPost, "/v1/sessions", logOnRequest{
		Account:       opts.AccountName,
		Password:      opts.Password,
		TwoFactorCode: opts.TwoFactorCode,
		RefreshToken:  opts.RefreshToken,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.ID == "" {
		return platform.NewError(platform.KindServiceUnavailable, "gateway returned no session id")
	}

	streamPath := "/v1/sessions/" + url.PathEscape(resp.ID) + "/events"
	conn, httpResp, err := s.client.dialer.DialContext(ctx, s.client.streamURL(streamPath), s.client.header())
	if httpResp != nil && httpResp.Body != nil {
		httpResp.Body.Close()
	}
	if err != nil {
		if derr := s.deleteRemote(resp.ID); derr != nil {
			s.logger.Warn("failed to delete unattached gateway session", "session", resp.ID, "err", derr)
		}
		return platform.NewError(platform.KindServiceUnavailable, fmt.Sprintf("attach event stream: %v", err))
	}

	s.mu.Lock()
	s.id = resp.ID
	s.conn = conn
	s.mu.Unlock()

	s.logger.Debug("gateway session created", "session", resp.ID, "resume", opts.Resuming())
	go s.readLoop(conn)
	return nil
}

// readLoop is the only reader of the stream and the only closer of events.
func (s *Session) readLoop(conn *websocket.Conn) {
	defer close(s.events)
	for {
		var w wireEvent
		if err := conn.ReadJSON(&w); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("event stream closed", "err", err)
				s.emit(platform.Event{Type: platform.EventDisconnected, Reason: err.Error()})
			}
			return
		}
		ev, ok := w.toEvent()
		if !ok {
			s.logger.Debug("ignoring unknown gateway event", "type", w.Type)
			continue
		}
		if ev.Type == platform.EventLoggedOn {
			s.mu.Lock()
			s.identity = ev.Identity
			s.mu.Unlock()
		}
		if !s.emit(ev) {
			return
		}
	}
}

func (s *Session) emit(ev platform.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Events implements platform.Session.
func (s *Session) Events() <-chan platform.Event { return s.events }

// Identity implements platform.Session.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// ListItems implements platform.Session.
func (s *Session) ListItems(ctx context.Context, appID, contextID int64) ([]platform.RawItem, error) {
	p, err := s.path(fmt.Sprintf("/inventory/%d/%d", appID, contextID))
	if err != nil {
		return nil, err
	}
	var resp inventoryResponse
	if err := s.client.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CreateOffer implements platform.Session.
func (s *Session) CreateOffer(ctx context.Context, partnerURL string, items []platform.ItemRef) (*platform.Offer, error) {
	p, err := s.path("/offers")
	if err != nil {
		return nil, err
	}
	var resp offerResponse
	if err := s.client.do(ctx, http.MethodPost, p, offerRequest{Partner: partnerURL, Items: items}, &resp); err != nil {
		return nil, err
	}
	return &platform.Offer{ID: resp.ID, Status: platform.OfferStatus(resp.Status)}, nil
}

// ConfirmOffer implements platform.Session.
func (s *Session) ConfirmOffer(ctx context.Context, identitySecret, offerID string) error {
	p, err := s.path("/offers/" + url.PathEscape(offerID) + "/confirm")
	if err != nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, p, confirmRequest{IdentitySecret: identitySecret}, nil)
}

// LogOff detaches from the stream and deletes the gateway session.
func (s *Session) LogOff() error {
	var err error
	s.offOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		conn := s.conn
		id := s.id
		s.mu.Unlock()

		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "log off"),
				time.Now().Add(time.Second))
			conn.Close()
		}
		if id == "" {
			return
		}
		if err = s.deleteRemote(id); err != nil {
			s.logger.Warn("failed to delete gateway session", "session", id, "err", err)
		}
	})
	return err
}

// deleteRemote removes the gateway session id. An already expired session
// counts as deleted.
func (s *Session) deleteRemote(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.client.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil)
	var perr *platform.Error
	if errors.As(err, &perr) && perr.Kind == platform.KindExpired {
		return nil
	}
	return err
}

var _ platform.Session = (*Session)(nil)
