package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"botfleet-api/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*SQLStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(context.Background(), Options{Driver: "sqlite", DSN: ":memory:", Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func createAccount(t *testing.T, s *SQLStore, username string) *model.Account {
	t.Helper()
	a := &model.Account{Username: username, Password: "pw-" + username}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func TestAccountLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "alice")
	assert.NotZero(t, a.ID)

	got, err := s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "pw-alice", got.Password)

	err = s.CreateAccount(ctx, &model.Account{Username: "alice", Password: "x"})
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	secret := "c2VjcmV0"
	updated, err := s.UpdateAccount(ctx, a.ID, model.AccountUpdate{SharedSecret: &secret})
	require.NoError(t, err)
	assert.Equal(t, secret, updated.SharedSecret)
	assert.Equal(t, "pw-alice", updated.Password)

	createAccount(t, s, "bob")
	list, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)

	require.NoError(t, s.DeleteAccount(ctx, a.ID))
	_, err = s.GetAccount(ctx, a.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAccount(ctx, a.ID), model.ErrNotFound)
}

func TestCreateAccountValidates(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.CreateAccount(context.Background(), &model.Account{Username: "carol"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSessionRoundTrip(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "alice")

	require.NoError(t, s.SaveSession(ctx, &model.Session{AccountID: a.ID, RefreshToken: "tok-1", WebSessionID: "web-1"}))

	got, err := s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.RefreshToken)
	assert.Equal(t, clock.Now().Add(model.DefaultSessionTTL), got.ExpiresAt)

	// replace-on-write
	require.NoError(t, s.SaveSession(ctx, &model.Session{AccountID: a.ID, RefreshToken: "tok-2"}))
	got, err = s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.RefreshToken)

	active, err := s.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, active)

	require.NoError(t, s.DeleteSession(ctx, a.ID))
	got, err = s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionExpiry(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "alice")

	require.NoError(t, s.SaveSession(ctx, &model.Session{AccountID: a.ID, RefreshToken: "tok"}))

	clock.Advance(model.DefaultSessionTTL - time.Second)
	got, err := s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(time.Second)
	got, err = s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "a session at its expiry must not be returned")

	n, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionExpiryCappedByTokenClaim(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "alice")

	exp := clock.Now().Add(48 * time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	require.NoError(t, s.SaveSession(ctx, &model.Session{AccountID: a.ID, RefreshToken: token}))

	got, err := s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ExpiresAt.Equal(exp), "expiry %v, want %v", got.ExpiresAt, exp)

	clock.Advance(48 * time.Hour)
	got, err = s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInventoryCache(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "alice")
	key := model.InventoryKey{AccountID: a.ID, AppID: 730, ContextID: 2}

	miss, err := s.GetInventory(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, miss)

	entry := &model.InventoryEntry{Key: key, Items: []model.Item{{ID: "1", Name: "Case", Tradable: true}}}
	require.NoError(t, s.SaveInventory(ctx, entry))
	assert.Equal(t, clock.Now(), entry.CachedAt)

	got, err := s.GetInventory(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Case", got.Items[0].Name)

	// empty snapshots are stored, not treated as a miss
	require.NoError(t, s.SaveInventory(ctx, &model.InventoryEntry{Key: key}))
	got, err = s.GetInventory(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Items)

	clock.Advance(25 * time.Hour)
	n, err := s.DeleteInventoryOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteAccountCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "alice")

	require.NoError(t, s.SaveSession(ctx, &model.Session{AccountID: a.ID, RefreshToken: "tok"}))
	key := model.InventoryKey{AccountID: a.ID, AppID: 730, ContextID: 2}
	require.NoError(t, s.SaveInventory(ctx, &model.InventoryEntry{Key: key}))

	require.NoError(t, s.DeleteAccount(ctx, a.ID))

	sess, err := s.GetSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, sess)
	entry, err := s.GetInventory(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSettings(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	all, err := s.AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings, all)

	require.NoError(t, s.SetSetting(ctx, model.SettingLoginDelay, "1000"))
	require.NoError(t, s.SetDefaultSetting(ctx, model.SettingLoginDelay, "5000"))

	v, err := s.GetSetting(ctx, model.SettingLoginDelay)
	require.NoError(t, err)
	assert.Equal(t, "1000", v)

	_, err = s.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	createAccount(t, s, "alice")

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["accounts"])
	assert.Equal(t, "sqlite", stats["driver"])
}

func TestDialectRebindAndUpsert(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", dialectPostgres.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "SELECT ?", dialectSQLite.rebind("SELECT ?"))

	assert.Equal(t,
		"INSERT INTO settings (setting_key, setting_value) VALUES (?, ?) ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)",
		dialectMySQL.upsert("settings", []string{"setting_key"}, []string{"setting_value"}))
	assert.Equal(t,
		"INSERT INTO settings (setting_key, setting_value) VALUES (?, ?) ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value",
		dialectPostgres.upsert("settings", []string{"setting_key"}, []string{"setting_value"}))
}
