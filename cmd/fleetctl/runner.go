package main

import (
	"context"
	"fmt"
	"io"

	"botfleet-api/internal/config"
	"botfleet-api/internal/repository"

	"github.com/urfave/cli/v3"
)

// Opener opens the store a command operates on.
type Opener func(ctx context.Context, cmd *cli.Command) (repository.Store, error)

// Runner holds the state shared by every command.
type Runner struct {
	out   io.Writer
	open  Opener
	store repository.Store
}

// NewRunner creates a runner writing to out. A nil open reads the store
// location from the environment and the global flags.
func NewRunner(out io.Writer, open Opener) *Runner {
	r := &Runner{out: out, open: open}
	if r.open == nil {
		r.open = openFromConfig
	}
	return r
}

func (r *Runner) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store-type",
			Usage: "Store driver (sqlite, mysql or postgres); defaults to STORE_TYPE",
		},
		&cli.StringFlag{
			Name:  "dsn",
			Usage: "Data source name; defaults to the STORE_* environment",
		},
	}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		accountsCommand(r),
		sessionsCommand(r),
		settingsCommand(r),
		cacheCommand(r),
	}
}

// Store opens the store on first use.
func (r *Runner) Store(ctx context.Context, cmd *cli.Command) (repository.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	s, err := r.open(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	r.store = s
	return s, nil
}

// Close releases the store if one was opened.
func (r *Runner) Close() {
	if r.store != nil {
		r.store.Close()
		r.store = nil
	}
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func openFromConfig(ctx context.Context, cmd *cli.Command) (repository.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if t := cmd.String("store-type"); t != "" {
		cfg.Store.Type = t
	}
	driver, dsn := cfg.Store.DSN()
	if v := cmd.String("dsn"); v != "" {
		dsn = v
	}
	return repository.Open(ctx, repository.Options{
		Driver:     driver,
		DSN:        dsn,
		SessionTTL: cfg.Orchestrator.SessionTTL,
	})
}
