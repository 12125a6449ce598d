// Command fleetctl administers the botfleet store directly, without a
// running API server.
package main

import (
	"context"
	"os"

	"botfleet-api/internal/logging"

	"github.com/urfave/cli/v3"
)

func main() {
	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"))
	runner := NewRunner(os.Stdout, nil)
	defer runner.Close()

	app := &cli.Command{
		Name:     "fleetctl",
		Usage:    "Manage botfleet accounts, sessions, settings and caches",
		Version:  "1.0.0",
		Flags:    runner.flags(),
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		runner.Close()
		logger.Fatal("fleetctl failed", "err", err)
	}
}
