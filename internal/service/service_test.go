package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/model"
	"botfleet-api/internal/repository"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T, clock *testClock) *repository.SQLStore {
	t.Helper()
	opts := repository.Options{Driver: "sqlite", DSN: ":memory:"}
	if clock != nil {
		opts.Now = clock.Now
	}
	s, err := repository.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addAccount(t *testing.T, s repository.AccountRepository, a *model.Account) *model.Account {
	t.Helper()
	if a.Password == "" {
		a.Password = "pw"
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

// drain returns the events currently buffered in sub.
func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.C():
			out = append(out, ev)
		default:
			return out
		}
	}
}
