package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"botfleet-api/internal/model"
	"botfleet-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

type harness struct {
	store *repository.SQLStore
	out   *bytes.Buffer
	r     *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := repository.Open(context.Background(), repository.Options{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	out := &bytes.Buffer{}
	r := NewRunner(out, func(context.Context, *cli.Command) (repository.Store, error) {
		return store, nil
	})
	return &harness{store: store, out: out, r: r}
}

func (h *harness) run(args ...string) error {
	h.out.Reset()
	app := &cli.Command{
		Name:     "fleetctl",
		Flags:    h.r.flags(),
		Commands: h.r.register(),
		Writer:   io.Discard,
	}
	return app.Run(context.Background(), append([]string{"fleetctl"}, args...))
}

func TestAccountsAddListRemove(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("accounts", "add", "--username", "alice", "--password", "pw", "--shared-secret", "c2VjcmV0"))
	assert.Contains(t, h.out.String(), "added alice")

	require.NoError(t, h.run("accounts", "list"))
	assert.Contains(t, h.out.String(), "alice")
	assert.Contains(t, h.out.String(), "2fa=yes")
	assert.Contains(t, h.out.String(), "1 account(s)")

	assert.ErrorIs(t, h.run("accounts", "add", "-u", "alice", "-p", "other"), model.ErrAlreadyExists)

	require.NoError(t, h.run("accounts", "remove", "alice"))
	_, err := h.store.GetAccountByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.ErrorIs(t, h.run("accounts", "rm", "alice"), model.ErrNotFound)
}

func TestAccountsImport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.CreateAccount(ctx, &model.Account{Username: "bob", Password: "old"}))

	path := filepath.Join(t.TempDir(), "accounts.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[account]]
username = "alice"
password = "pw"
shared_secret = "c2VjcmV0"

[[account]]
username = "bob"
password = "new"
`), 0o600))

	require.NoError(t, h.run("accounts", "import", path))
	assert.Contains(t, h.out.String(), "imported 1, updated 0, skipped 1")

	alice, err := h.store.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.HasTwoFactor())

	bob, err := h.store.GetAccountByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "old", bob.Password)

	require.NoError(t, h.run("accounts", "import", "--update", path))
	assert.Contains(t, h.out.String(), "imported 0, updated 2, skipped 0")
	bob, err = h.store.GetAccountByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "new", bob.Password)
}

func TestAccountsImportRejectsInvalidEntries(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[account]]\nusername = \"alice\"\n"), 0o600))

	assert.ErrorIs(t, h.run("accounts", "import", path), model.ErrInvalidInput)
	assert.Error(t, h.run("accounts", "import", filepath.Join(t.TempDir(), "missing.toml")))
}

func TestSessionsListAndClear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob"} {
		a := &model.Account{Username: name, Password: "pw"}
		require.NoError(t, h.store.CreateAccount(ctx, a))
		require.NoError(t, h.store.SaveSession(ctx, &model.Session{AccountID: a.ID, RefreshToken: "token-" + name}))
	}

	require.NoError(t, h.run("sessions", "list"))
	assert.Contains(t, h.out.String(), "2 active session(s)")

	require.NoError(t, h.run("sessions", "clear", "alice"))
	names, err := h.store.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names)

	require.NoError(t, h.run("sessions", "clear", "--expired"))
	assert.Contains(t, h.out.String(), "deleted 0 expired session(s)")

	require.NoError(t, h.run("sessions", "clear"))
	names, err = h.store.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSettingsGetSet(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("settings", "set", "login_delay", "250"))
	require.NoError(t, h.run("settings", "get", "login_delay"))
	assert.Equal(t, "250\n", h.out.String())

	assert.ErrorIs(t, h.run("settings", "set", "login_mode", "whenever"), model.ErrInvalidInput)
	assert.Error(t, h.run("settings", "set", "login_mode"))

	require.NoError(t, h.run("settings", "get"))
	assert.Contains(t, h.out.String(), "login_delay=250")
	assert.Contains(t, h.out.String(), "login_mode="+model.LoginModeSequential)
}

func TestCacheClear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := &model.Account{Username: "alice", Password: "pw"}
	require.NoError(t, h.store.CreateAccount(ctx, a))
	key := model.InventoryKey{AccountID: a.ID, AppID: 730, ContextID: 2}
	require.NoError(t, h.store.SaveInventory(ctx, &model.InventoryEntry{Key: key, Items: []model.Item{{ID: "1"}}}))

	require.NoError(t, h.run("cache", "clear", "alice"))
	assert.Contains(t, h.out.String(), "deleted 1 cached snapshot(s)")

	entry, err := h.store.GetInventory(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, h.run("cache", "clear"))
	assert.Contains(t, h.out.String(), "deleted 0 cached snapshot(s)")
}
