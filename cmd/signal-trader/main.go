// Command signal-trader paper-trades scored equity signals as derivatives.
//
// Usage:
//
//	signal-trader plan signal.json
//	cat signals.ndjson | signal-trader run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"signal-trader/internal/cli"
	"signal-trader/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The root command rebuilds the logger once the config is loaded.
	rootCmd := cli.NewRootCmd(nil, logging.NewLogger())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
