package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"botfleet-api/internal/platform"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	logOns   []logOnRequest
	offers   []offerRequest
	confirms []string
	deleted  []string
	auth     []string
	stream   []wireEvent
	noStream bool
	conns    chan *websocket.Conn
}

func newTestGateway(t *testing.T) (*testGateway, *Client) {
	t.Helper()
	g := &testGateway{t: t, conns: make(chan *websocket.Conn, 4)}
	g.stream = []wireEvent{
		{Type: "logged_on", Identity: "76561190"},
		{Type: "refresh_token", RefreshToken: "tok"},
		{Type: "web_session", SessionID: "web"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req logOnRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		g.mu.Lock()
		g.logOns = append(g.logOns, req)
		g.auth = append(g.auth, r.Header.Get("Authorization"))
		g.mu.Unlock()
		switch req.Password {
		case "wrong":
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(errorResponse{Error: wireError{Kind: "invalid_password", Message: "bad password"}})
			return
		case "busy":
			w.WriteHeader(http.StatusTooManyRequests)
			return
		case "down":
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(logOnResponse{ID: "s1"})
	})
	mux.HandleFunc("GET /v1/sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		refuse := g.noStream
		g.mu.Unlock()
		if refuse {
			http.Error(w, "stream unavailable", http.StatusBadGateway)
			return
		}
		conn, err := g.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		g.mu.Lock()
		stream := g.stream
		g.mu.Unlock()
		for _, ev := range stream {
			require.NoError(t, conn.WriteJSON(ev))
		}
		g.conns <- conn
	})
	mux.HandleFunc("GET /v1/sessions/{id}/inventory/{app}/{ctx}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("ctx") == "16" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(inventoryResponse{Items: []platform.RawItem{
			{AssetID: "1", Name: "Case", Tradable: true},
		}})
	})
	mux.HandleFunc("POST /v1/sessions/{id}/offers", func(w http.ResponseWriter, r *http.Request) {
		var req offerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		g.mu.Lock()
		g.offers = append(g.offers, req)
		g.mu.Unlock()
		json.NewEncoder(w).Encode(offerResponse{ID: "o1", Status: "pending"})
	})
	mux.HandleFunc("POST /v1/sessions/{id}/offers/{offer}/confirm", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.confirms = append(g.confirms, r.PathValue("offer"))
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.deleted = append(g.deleted, r.PathValue("id"))
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{URL: srv.URL + "/", Token: "secret", RequestTimeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return g, client
}

func nextEvent(t *testing.T, sess platform.Session) platform.Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return platform.Event{}
	}
}

func logOn(t *testing.T, client *Client, password string) (platform.Session, error) {
	t.Helper()
	sess, err := client.NewSession("alice")
	require.NoError(t, err)
	t.Cleanup(func() { sess.LogOff() })
	return sess, sess.LogOn(context.Background(), platform.LogOnOptions{AccountName: "alice", Password: password, TwoFactorCode: "12345"})
}

func TestLogOnStreamsEvents(t *testing.T) {
	g, client := newTestGateway(t)
	sess, err := logOn(t, client, "pw")
	require.NoError(t, err)

	loggedOn := nextEvent(t, sess)
	assert.Equal(t, platform.EventLoggedOn, loggedOn.Type)
	assert.Equal(t, "76561190", loggedOn.Identity)
	assert.Equal(t, "tok", nextEvent(t, sess).RefreshToken)
	assert.Equal(t, "web", nextEvent(t, sess).SessionID)
	assert.Equal(t, "76561190", sess.Identity())

	g.mu.Lock()
	defer g.mu.Unlock()
	require.Len(t, g.logOns, 1)
	assert.Equal(t, logOnRequest{Account: "alice", Password: "pw", TwoFactorCode: "12345"}, g.logOns[0])
	assert.Equal(t, "Bearer secret", g.auth[0])
}

func TestLogOnErrorsAreClassified(t *testing.T) {
	_, client := newTestGateway(t)

	tests := []struct {
		password string
		kind     platform.ErrorKind
	}{
		{"wrong", platform.KindInvalidPassword},
		{"busy", platform.KindRateLimited},
		{"down", platform.KindServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			_, err := logOn(t, client, tt.password)
			var perr *platform.Error
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestStreamErrorEvent(t *testing.T) {
	g, client := newTestGateway(t)
	g.stream = []wireEvent{{Type: "error", Error: &wireError{Kind: "rate_limited", Message: "slow down"}}, {Type: "bogus"}, {Type: "new_items", Count: 3}}

	sess, err := logOn(t, client, "pw")
	require.NoError(t, err)

	ev := nextEvent(t, sess)
	assert.Equal(t, platform.EventError, ev.Type)
	require.NotNil(t, ev.Err)
	assert.Equal(t, platform.KindRateLimited, ev.Err.Kind)
	assert.Equal(t, "slow down", ev.Err.Message)

	next := nextEvent(t, sess)
	assert.Equal(t, platform.EventNewItems, next.Type)
	assert.Equal(t, 3, next.Count)
}

func TestSessionOperations(t *testing.T) {
	g, client := newTestGateway(t)
	sess, err := logOn(t, client, "pw")
	require.NoError(t, err)
	ctx := context.Background()

	items, err := sess.ListItems(ctx, 730, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Case", items[0].Name)

	_, err = sess.ListItems(ctx, 730, 16)
	var perr *platform.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, platform.KindServiceUnavailable, perr.Kind)

	offer, err := sess.CreateOffer(ctx, "https://partner", []platform.ItemRef{{AppID: 730, ContextID: 2, AssetID: "1"}})
	require.NoError(t, err)
	assert.Equal(t, &platform.Offer{ID: "o1", Status: platform.OfferPending}, offer)

	require.NoError(t, sess.ConfirmOffer(ctx, "identity", "o1"))

	g.mu.Lock()
	defer g.mu.Unlock()
	require.Len(t, g.offers, 1)
	assert.Equal(t, "https://partner", g.offers[0].Partner)
	assert.Equal(t, "1", g.offers[0].Items[0].AssetID)
	assert.Equal(t, []string{"o1"}, g.confirms)
}

func TestOperationsBeforeLogOn(t *testing.T) {
	_, client := newTestGateway(t)
	sess, err := client.NewSession("alice")
	require.NoError(t, err)

	_, err = sess.ListItems(context.Background(), 730, 2)
	var perr *platform.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, platform.KindExpired, perr.Kind)
	assert.NoError(t, sess.LogOff())
}

func TestLogOffDeletesSessionAndClosesStream(t *testing.T) {
	g, client := newTestGateway(t)
	g.stream = nil
	sess, err := logOn(t, client, "pw")
	require.NoError(t, err)

	require.NoError(t, sess.LogOff())
	require.NoError(t, sess.LogOff())

	select {
	case _, ok := <-sess.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"s1"}, g.deleted)
}

func TestLogOnDeletesSessionWhenStreamFails(t *testing.T) {
	g, client := newTestGateway(t)
	g.noStream = true

	_, err := logOn(t, client, "pw")
	var perr *platform.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, platform.KindServiceUnavailable, perr.Kind)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"s1"}, g.deleted)
}

func TestServerCloseReportsDisconnect(t *testing.T) {
	g, client := newTestGateway(t)
	g.stream = nil
	sess, err := logOn(t, client, "pw")
	require.NoError(t, err)

	conn := <-g.conns
	conn.Close()

	ev := nextEvent(t, sess)
	assert.Equal(t, platform.EventDisconnected, ev.Type)
	assert.NotEmpty(t, ev.Reason)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{URL: "ftp://gateway"}, nil)
	assert.Error(t, err)
}
