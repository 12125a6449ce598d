package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"botfleet-api/internal/model"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"
)

// importFile is the TOML layout accepted by "accounts import":
//
//	[[account]]
//	username = "alice"
//	password = "..."
//	shared_secret = "..."
type importFile struct {
	Accounts []importAccount `toml:"account"`
}

type importAccount struct {
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Email          string `toml:"email"`
	SharedSecret   string `toml:"shared_secret"`
	IdentitySecret string `toml:"identity_secret"`
	RecoveryCode   string `toml:"recovery_code"`
}

func (a importAccount) toAccount() *model.Account {
	return &model.Account{
		Username:       strings.TrimSpace(a.Username),
		Password:       a.Password,
		Email:          a.Email,
		SharedSecret:   a.SharedSecret,
		IdentitySecret: a.IdentitySecret,
		RecoveryCode:   a.RecoveryCode,
	}
}

// ListAccounts prints every stored account.
func (r *Runner) ListAccounts(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		twoFactor := "no"
		if a.HasTwoFactor() {
			twoFactor = "yes"
		}
		r.printf("%-24s 2fa=%-3s created=%s", a.Username, twoFactor, a.CreatedAt.Format("2006-01-02"))
	}
	r.printf("%d account(s)", len(accounts))
	return nil
}

// AddAccount stores one account from flags.
func (r *Runner) AddAccount(ctx context.Context, cmd *cli.Command) error {
	a := &model.Account{
		Username:       cmd.String("username"),
		Password:       cmd.String("password"),
		Email:          cmd.String("email"),
		SharedSecret:   cmd.String("shared-secret"),
		IdentitySecret: cmd.String("identity-secret"),
	}
	if err := a.Validate(); err != nil {
		return err
	}
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	if err := store.CreateAccount(ctx, a); err != nil {
		return err
	}
	r.printf("added %s", a.Username)
	return nil
}

// RemoveAccount deletes an account with its session and cached inventory.
func (r *Runner) RemoveAccount(ctx context.Context, cmd *cli.Command) error {
	username := cmd.Args().First()
	if username == "" {
		return fmt.Errorf("username is required")
	}
	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}
	a, err := store.GetAccountByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := store.DeleteAccount(ctx, a.ID); err != nil {
		return err
	}
	r.printf("removed %s", username)
	return nil
}

// ImportAccounts adds every account of a TOML file. Existing usernames are
// skipped unless --update is set, in which case their credentials are replaced.
func (r *Runner) ImportAccounts(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}
	var file importFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse import file: %w", err)
	}

	store, err := r.Store(ctx, cmd)
	if err != nil {
		return err
	}

	var added, updated, skipped int
	for i, entry := range file.Accounts {
		a := entry.toAccount()
		if err := a.Validate(); err != nil {
			return fmt.Errorf("account #%d: %w", i+1, err)
		}

		err := store.CreateAccount(ctx, a)
		switch {
		case err == nil:
			added++
		case errors.Is(err, model.ErrAlreadyExists) && cmd.Bool("update"):
			existing, err := store.GetAccountByUsername(ctx, a.Username)
			if err != nil {
				return err
			}
			if _, err := store.UpdateAccount(ctx, existing.ID, model.AccountUpdate{
				Password:       &a.Password,
				Email:          &a.Email,
				SharedSecret:   &a.SharedSecret,
				IdentitySecret: &a.IdentitySecret,
				RecoveryCode:   &a.RecoveryCode,
			}); err != nil {
				return err
			}
			updated++
		case errors.Is(err, model.ErrAlreadyExists):
			skipped++
		default:
			return fmt.Errorf("account %s: %w", a.Username, err)
		}
	}
	r.printf("imported %d, updated %d, skipped %d", added, updated, skipped)
	return nil
}

func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"account", "acc"},
		Usage:   "Manage stored accounts",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List accounts",
				Action: r.ListAccounts,
			},
			{
				Name:  "add",
				Usage: "Add an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "shared-secret", Usage: "Base64 or base32 two-factor secret"},
					&cli.StringFlag{Name: "identity-secret", Usage: "Secret used to confirm offers"},
				},
				Action: r.AddAccount,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove an account with its session and cached inventory",
				ArgsUsage: "<username>",
				Action:    r.RemoveAccount,
			},
			{
				Name:      "import",
				Usage:     "Import accounts from a TOML file",
				ArgsUsage: "<file.toml>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "update", Usage: "Replace credentials of existing accounts"},
				},
				Action: r.ImportAccounts,
			},
		},
	}
}
