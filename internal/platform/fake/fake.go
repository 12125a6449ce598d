// Package fake is a scriptable in-memory platform used by tests and by
// development runs without a gateway.
package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"botfleet-api/internal/platform"
)

// Script decides which events follow the n-th (1-based) LogOn of an account.
type Script func(attempt int, opts platform.LogOnOptions) []platform.Event

// Succeed logs on, hands out a refresh token and materializes a web session.
func Succeed() Script {
	return func(attempt int, opts platform.LogOnOptions) []platform.Event {
		token := opts.RefreshToken
		if token == "" {
			token = fmt.Sprintf("refresh-%s-%d", opts.AccountName, attempt)
		}
		return []platform.Event{
			{Type: platform.EventLoggedOn, Identity: "7656119" + opts.AccountName},
			{Type: platform.EventRefreshToken, RefreshToken: token},
			{Type: platform.EventWebSession, SessionID: fmt.Sprintf("web-%d", attempt)},
		}
	}
}

// Fail reports a classified error on every attempt.
func Fail(kind platform.ErrorKind) Script {
	return func(int, platform.LogOnOptions) []platform.Event {
		return []platform.Event{{Type: platform.EventError, Err: platform.NewError(kind, kind.String())}}
	}
}

// Challenge asks for a code that cannot be produced automatically.
func Challenge(channel string) Script {
	return func(int, platform.LogOnOptions) []platform.Event {
		return []platform.Event{{Type: platform.EventChallenge, Channel: channel}}
	}
}

// Silent never answers, so the caller's timeout fires.
func Silent() Script {
	return func(int, platform.LogOnOptions) []platform.Event { return nil }
}

// Sequence plays scripts in order and repeats the last one.
func Sequence(scripts ...Script) Script {
	return func(attempt int, opts platform.LogOnOptions) []platform.Event {
		i := attempt - 1
		if i >= len(scripts) {
			i = len(scripts) - 1
		}
		return scripts[i](attempt, opts)
	}
}

// Account holds the scripted behaviour of one username.
type Account struct {
	Script      Script
	Items       map[int64][]platform.RawItem
	ListErr     map[int64]error
	OfferStatus platform.OfferStatus
	OfferErr    error
	ConfirmErr  error
}

// Client implements platform.Client.
type Client struct {
	mu       sync.Mutex
	accounts map[string]*Account
	sessions map[string][]*Session
	logOns   map[string][]platform.LogOnOptions

	listCalls    atomic.Int64
	offerCalls   atomic.Int64
	confirmCalls atomic.Int64
}

// NewClient creates an empty fake platform. Unknown accounts succeed.
func NewClient() *Client {
	return &Client{
		accounts: make(map[string]*Account),
		sessions: make(map[string][]*Session),
		logOns:   make(map[string][]platform.LogOnOptions),
	}
}

// SetAccount installs behaviour for username.
func (c *Client) SetAccount(username string, acc *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[username] = acc
}

func (c *Client) account(username string) *Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.accounts[username]
	if !ok {
		acc = &Account{}
		c.accounts[username] = acc
	}
	if acc.Script == nil {
		acc.Script = Succeed()
	}
	return acc
}

// NewSession implements platform.Client.
func (c *Client) NewSession(username string) (platform.Session, error) {
	s := &Session{
		client:   c,
		username: username,
		events:   make(chan platform.Event, 64),
		done:     make(chan struct{}),
	}
	c.mu.Lock()
	c.sessions[username] = append(c.sessions[username], s)
	c.mu.Unlock()
	return s, nil
}

// LogOns returns every LogOn issued for username, oldest first.
func (c *Client) LogOns(username string) []platform.LogOnOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.LogOnOptions, len(c.logOns[username]))
	copy(out, c.logOns[username])
	return out
}

// LastSession returns the newest session opened for username.
func (c *Client) LastSession(username string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.sessions[username]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// ListCalls counts ListItems invocations across all sessions.
func (c *Client) ListCalls() int64 { return c.listCalls.Load() }

// OfferCalls counts CreateOffer invocations across all sessions.
func (c *Client) OfferCalls() int64 { return c.offerCalls.Load() }

// ConfirmCalls counts ConfirmOffer invocations across all sessions.
func (c *Client) ConfirmCalls() int64 { return c.confirmCalls.Load() }

// Session implements platform.Session.
type Session struct {
	client   *Client
	username string

	mu       sync.Mutex
	identity string
	events   chan platform.Event
	done     chan struct{}
	closed   bool
}

// LogOn records the attempt and plays the account's script asynchronously.
func (s *Session) LogOn(ctx context.Context, opts platform.LogOnOptions) error {
	c := s.client
	c.mu.Lock()
	c.logOns[s.username] = append(c.logOns[s.username], opts)
	attempt := len(c.logOns[s.username])
	c.mu.Unlock()

	events := c.account(s.username).Script(attempt, opts)
	go func() {
		for _, ev := range events {
			if !s.Emit(ev) {
				return
			}
		}
	}()
	return nil
}

// Emit delivers an event unless the session is logged off. It reports
// whether the event was delivered.
func (s *Session) Emit(ev platform.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if ev.Type == platform.EventLoggedOn {
		s.mu.Lock()
		s.identity = ev.Identity
		s.mu.Unlock()
	}
	select {
	case <-s.done:
		return false
	case s.events <- ev:
		return true
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

// Closed reports whether LogOff was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ListItems implements platform.Session.
func (s *Session) ListItems(ctx context.Context, appID, contextID int64) ([]platform.RawItem, error) {
	s.client.listCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := s.client.account(s.username)
	if err := acc.ListErr[contextID]; err != nil {
		return nil, err
	}
	items := acc.Items[contextID]
	out := make([]platform.RawItem, len(items))
	copy(out, items)
	return out, nil
}

// CreateOffer implements platform.Session.
func (s *Session) CreateOffer(ctx context.Context, partnerURL string, items []platform.ItemRef) (*platform.Offer, error) {
	n := s.client.offerCalls.Add(1)
	acc := s.client.account(s.username)
	if acc.OfferErr != nil {
		return nil, acc.OfferErr
	}
	status := acc.OfferStatus
	if status == "" {
		status = platform.OfferSent
	}
	return &platform.Offer{ID: fmt.Sprintf("offer-%d", n), Status: status}, nil
}

// ConfirmOffer implements platform.Session.
func (s *Session) ConfirmOffer(ctx context.Context, identitySecret, offerID string) error {
	s.client.confirmCalls.Add(1)
	return s.client.account(s.username).ConfirmErr
}

// LogOff implements platform.Session.
func (s *Session) LogOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

var (
	_ platform.Client  = (*Client)(nil)
	_ platform.Session = (*Session)(nil)
)
