// Package main implements the entry point for the livemirror service:
// it mirrors remote document collections into memory and serves the
// data-provider API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/livemirror/config"
	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/natsclient"
	"github.com/c360/livemirror/provider"
	"github.com/c360/livemirror/store/natskv"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "livemirror"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Flags win over config file and environment
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting livemirror",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"nats_url", cfg.NATS.URL,
		"bucket", cfg.Store.Bucket)

	ctx := context.Background()

	natsClient, err := connectNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = natsClient.Close() }()

	remote, err := natskv.New(ctx, natsClient, cfg.Store.Bucket, natskv.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	metrics := metric.New()
	dataProvider := provider.New(remote,
		provider.WithLogger(logger),
		provider.WithMetrics(metrics),
	)
	defer dataProvider.Close()

	if len(cfg.Resources) > 0 {
		slog.Info("Warming mirrors", "resources", cfg.Resources)
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := dataProvider.Registry().EnsureAll(warmCtx, cfg.Resources...); err != nil {
			return fmt.Errorf("warm mirrors: %w", err)
		}
	}

	server := newServer(cfg.HTTP.Addr, dataProvider, metrics, logger)
	return runWithSignalHandling(ctx, server, cliCfg.ShutdownTimeout)
}

// connectNATS creates the client and establishes the connection.
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithClientName(cfg.NATS.Name),
		natsclient.WithLogger(newNATSLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
	if err := natsClient.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return natsClient, nil
}

// runWithSignalHandling serves HTTP until a shutdown signal arrives, then
// drains the server within the configured timeout.
func runWithSignalHandling(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	slog.Info("Shutdown complete")
	return nil
}
