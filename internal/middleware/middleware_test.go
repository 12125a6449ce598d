package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"botfleet-api/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{APIKeys: []string{" secret "}, PublicPaths: []string{"/health"}})(okHandler)

	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
		want   int
	}{
		{"missing key", http.MethodGet, "/accounts", nil, http.StatusUnauthorized},
		{"wrong key", http.MethodGet, "/accounts", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", http.MethodGet, "/accounts", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", http.MethodGet, "/accounts", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"query key", http.MethodGet, "/ws?api_key=secret", nil, http.StatusOK},
		{"public path", http.MethodGet, "/health", nil, http.StatusOK},
		{"preflight", http.MethodOptions, "/accounts", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddlewareWithoutKeysIsOpen(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{APIKeys: []string{"", "  "}})(okHandler)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "abc", seen)
}

func TestRecovery(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestLoggingRecordsRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(Logging(nil, m))
	r.Get("/bots/{username}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bots/alice", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	n, err := testutil.GatherAndCount(m.Registry(), "botfleet_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
