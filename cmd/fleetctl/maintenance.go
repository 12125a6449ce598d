package main

import (
	"context"
	"fmt"
	"sort"

	"botfleet-api/internal/model"

	"github.com/urfave/cli/v3"
)

// ListSessions prints the accounts holding a resumable session.
func (r *Runner) ListSessions(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	names, err := store.ListActiveSessions(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		r.printf("%s", name)
	}
	r.printf("%d active session(s)", len(names))
	return nil
}

// ClearSessions deletes the session of one account, every expired session
// with --expired, or every session.
func (r *Runner) ClearSessions(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("expired") {
		n, err := store.DeleteExpiredSessions(ctx)
		if err != nil {
			return err
		}
		r.printf("deleted %d expired session(s)", n)
		return nil
	}

	var accounts []model.Account
	if username := cmd.Args().First(); username != "" {
		a, err := store.GetAccountByUsername(ctx, username)
		if err != nil {
			return err
		}
		accounts = append(accounts, *a)
	} else if accounts, err = store.ListAccounts(ctx); err != nil {
		return err
	}

	for _, a := range accounts {
		if err := store.DeleteSession(ctx, a.ID); err != nil {
			return fmt.Errorf("account %s: %w", a.Username, err)
		}
	}
	r.printf("cleared sessions of %d account(s)", len(accounts))
	return nil
}

// GetSetting prints one setting, or all of them without a key.
func (r *Runner) GetSetting(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	if key := cmd.Args().First(); key != "" {
		v, err := store.GetSetting(ctx, key)
		if err != nil {
			return err
		}
		r.printf("%s", v)
		return nil
	}
	all, err := store.AllSettings(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.printf("%s=%s", k, all[k])
	}
	return nil
}

// SetSetting validates and stores one setting.
func (r *Runner) SetSetting(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("usage: settings set <key> <value>")
	}
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)
	if err := model.ValidateSetting(key, value); err != nil {
		return err
	}
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	if err := store.SetSetting(ctx, key, value); err != nil {
		return err
	}
	r.printf("%s=%s", key, value)
	return nil
}

// ClearCache deletes cached inventory of one account, or of all accounts.
func (r *Runner) ClearCache(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	var n int64
	if username := cmd.Args().First(); username != "" {
		a, err := store.GetAccountByUsername(ctx, username)
		if err != nil {
			return err
		}
		n, err = store.DeleteInventory(ctx, a.ID)
		if err != nil {
			return err
		}
	} else if n, err = store.DeleteAllInventory(ctx); err != nil {
		return err
	}
	r.printf("deleted %d cached snapshot(s)", n)
	return nil
}

func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"session"},
		Usage:   "Inspect and clear persisted sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List accounts with a resumable session",
				Action: r.ListSessions,
			},
			{
				Name:      "clear",
				Usage:     "Delete sessions so the next log-on uses the password",
				ArgsUsage: "[username]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "expired", Usage: "Only delete expired sessions"},
				},
				Action: r.ClearSessions,
			},
		},
	}
}

func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "settings",
		Aliases: []string{"setting"},
		Usage:   "Read and write settings",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print a setting, or all settings",
				ArgsUsage: "[key]",
				Action:    r.GetSetting,
			},
			{
				Name:      "set",
				Usage:     "Store a setting",
				ArgsUsage: "<key> <value>",
				Action:    r.SetSetting,
			},
		},
	}
}

func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage cached inventories",
		Commands: []*cli.Command{
			{
				Name:      "clear",
				Usage:     "Delete cached inventories",
				ArgsUsage: "[username]",
				Action:    r.ClearCache,
			},
		},
	}
}
