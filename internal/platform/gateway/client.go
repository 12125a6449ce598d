// Package gateway bridges to an external platform gateway process that owns
// the platform protocols. Requests are JSON over HTTP; session events stream
// over a WebSocket.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/platform"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Config holds gateway connection settings.
type Config struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
}

// Client implements platform.Client against a gateway.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
	logger *log.Logger
}

// NewClient validates the gateway URL and prepares the HTTP and WebSocket clients.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway url must be http or https, got %q", cfg.URL)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Client{
		base:  base,
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.RequestTimeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.RequestTimeout,
		},
		logger: logging.Component(logger, "Gateway"),
	}, nil
}

// NewSession implements platform.Client. Nothing is sent until LogOn.
func (c *Client) NewSession(username string) (platform.Session, error) {
	return &Session{
		client:   c,
		username: username,
		logger:   c.logger.With("account", username),
		events:   make(chan platform.Event, 64),
		done:     make(chan struct{}),
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) streamURL(path string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + path
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header = c.header()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return platform.NewError(platform.KindTimeout, err.Error())
		}
		return platform.NewError(platform.KindServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Kind != "" {
		return platform.NewError(platform.ParseErrorKind(body.Error.Kind), body.Error.Message)
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return platform.NewError(platform.KindRateLimited, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return platform.NewError(platform.KindAccessDenied, msg)
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return platform.NewError(platform.KindTimeout, msg)
	case resp.StatusCode >= 500:
		return platform.NewError(platform.KindServiceUnavailable, msg)
	}
	return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)
}

var _ platform.Client = (*Client)(nil)
