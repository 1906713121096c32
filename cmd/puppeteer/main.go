package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/g960059/puppeteer/internal/cli"
	"github.com/g960059/puppeteer/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cfg := config.DefaultConfig()
	r := cli.NewRunner(cfg.SocketPath, os.Stdout, os.Stderr)
	code := r.Run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}
