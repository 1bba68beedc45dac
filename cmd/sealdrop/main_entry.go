//go:build !testcoverage

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := DefaultConfig()
	cfg.Context = ctx
	if err := run(os.Args, cfg); err != nil {
		stop()
		fatal(cfg.Stderr, "sealdrop: %v", err)
	}
}
