package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sovereign-xds/sovereign/internal/auth"
	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/common/telemetry"
	"github.com/sovereign-xds/sovereign/internal/discovery"
	"github.com/sovereign-xds/sovereign/internal/server"
	"github.com/sovereign-xds/sovereign/internal/sources"
	"github.com/sovereign-xds/sovereign/internal/templates"
)

func main() {

	var listenAddr = ":8000"
	var configPath = ""
	var logLevel = config.LogLevelFlag(slog.LevelInfo)

	flag.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address")
	flag.StringVar(&configPath, "config", "", "path to YAML configuration file")
	flag.Var(&logLevel, "log-level", "log level: debug, info, warn, error (default: info)")
	flag.Parse()

	// Validate flags
	if configPath == "" {
		slog.Error("config file must be specified: -config")
		os.Exit(1)
	}

	// Configure structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel.Level()}))
	slog.SetDefault(logger)

	// Initialize metrics
	telemetry.InitMetrics()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	registry, err := templates.NewRegistry(cfg.Templates)
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}
	slog.Info("loaded templates", "types", registry.Types())

	aggregator, err := sources.NewAggregator(
		cfg.Sources,
		cfg.Modifications,
		time.Duration(cfg.RefreshRateSeconds)*time.Second,
	)
	if err != nil {
		slog.Error("failed to configure sources", "error", err)
		os.Exit(1)
	}

	// Warm the sources once before serving
	aggregator.Refresh()

	orchestrator, err := discovery.New(cfg, registry, aggregator)
	if err != nil {
		slog.Error("failed to configure discovery", "error", err)
		os.Exit(1)
	}

	authenticator, err := auth.New(cfg)
	if err != nil {
		slog.Error("failed to configure auth", "error", err)
		os.Exit(1)
	}

	// Set up context and channels
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Start the source refresh loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		aggregator.Run(ctx)
	}()

	srv := server.New(cfg, orchestrator, authenticator)
	httpServer := &http.Server{Addr: listenAddr, Handler: srv.Handler()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("starting discovery http server", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for a shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	slog.Info("shutdown signal received, shutting down services")
	cancel()

	// Graceful shutdown of the HTTP server
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Wait for all goroutines with a timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	waitCtx, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel3()

	select {
	case <-done:
		slog.Info("all services stopped gracefully")
	case <-waitCtx.Done():
		slog.Warn("shutdown timeout exceeded, forcing exit")
	}

	slog.Info("exiting")
}
