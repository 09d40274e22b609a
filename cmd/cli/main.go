// Package main is the entry point for planetctl, the planetoidgen CLI.
package main

import (
	"context"
	"os"
	"os/signal"

	"planetoidgen/cmd/cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
