// Package main is the entry point for the envforge command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/envforge/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(version, commit, date)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, app.ErrNoEnvironments) {
			fmt.Fprintln(os.Stderr, "Error: no environments selected (use -e or --labels, or set env_list)")
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
