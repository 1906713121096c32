package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/daemon"
	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/dispatch"
	"github.com/g960059/puppeteer/internal/engine"
	"github.com/g960059/puppeteer/internal/logging"
	"github.com/g960059/puppeteer/internal/metrics"
	"github.com/g960059/puppeteer/internal/query"
	"github.com/g960059/puppeteer/internal/reconcile"
	"github.com/g960059/puppeteer/internal/tracing"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fatal(err)
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stderr)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{Stdout: cfg.TraceStdout})
	if err != nil {
		fatal(err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	store, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close() //nolint:errcheck

	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		fatal(err)
	}

	eng := engine.New(store, engine.Options{
		Channel:            dispatch.NewOutbox(),
		Logger:             log,
		Metrics:            metrics.Puppeteer(),
		StalePendingFactor: cfg.StalePendingFactor,
	})
	reconciler := reconcile.NewReconciler(eng, store, cfg, log)
	startReconcileLoop(ctx, reconciler, cfg.ReconcileInterval, log)
	startRetentionLoop(ctx, reconciler, cfg.RetentionInterval, log)
	startMetricsServer(ctx, cfg.MetricsAddr, log)

	log.Info().
		Str("socket", cfg.SocketPath).
		Str("db", cfg.DBPath).
		Int("stale_pending_factor", cfg.StalePendingFactor).
		Msg("puppeteerd starting")

	srv := daemon.NewServerWithDeps(cfg, daemon.Deps{
		Store:   store,
		Engine:  eng,
		Gateway: query.NewGateway(store),
		Logger:  log,
	})
	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

// parseConfig loads the TOML file named by -config and applies explicit
// flags on top of it.
func parseConfig(args []string, errOut io.Writer) (config.Config, error) {
	defaults := config.DefaultConfig()
	fs := flag.NewFlagSet("puppeteerd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "TOML config file")
	socketPath := fs.String("socket", defaults.SocketPath, "UDS path for puppeteerd")
	dbPath := fs.String("db", defaults.DBPath, "SQLite path")
	metricsAddr := fs.String("metrics-addr", "", "TCP address for a standalone /metrics listener")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "socket":
			cfg.SocketPath = *socketPath
		case "db":
			cfg.DBPath = *dbPath
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func startReconcileLoop(ctx context.Context, reconciler *reconcile.Reconciler, interval time.Duration, log zerolog.Logger) {
	loop := loopInterval(interval, 5*time.Second)
	run := func() {
		if err := reconciler.Tick(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("reconcile loop")
		}
	}
	run()
	go func() {
		ticker := time.NewTicker(loop)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func startRetentionLoop(ctx context.Context, reconciler *reconcile.Reconciler, interval time.Duration, log zerolog.Logger) {
	run := func() {
		if _, err := reconciler.Purge(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("retention purge failed")
		}
	}

	run()
	go func() {
		ticker := time.NewTicker(loopInterval(interval, time.Hour))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func startMetricsServer(ctx context.Context, addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func loopInterval(interval, fallback time.Duration) time.Duration {
	if interval <= 0 {
		return fallback
	}
	return interval
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "puppeteerd: %v\n", err)
	os.Exit(1)
}
