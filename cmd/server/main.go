package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/gateway"
	"github.com/nicktill/damwatch/pkg/logging"
	"github.com/nicktill/damwatch/pkg/pipeline"
	"github.com/nicktill/damwatch/pkg/report"
	"github.com/nicktill/damwatch/pkg/server"
	"github.com/nicktill/damwatch/pkg/server/monitor"
	"github.com/nicktill/damwatch/pkg/storage"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = config.RunTimeout + 30*time.Second
	shutdownTimeout    = 30 * time.Second
)

var version = "dev"

// app is the wired server, separated from main so tests can build it.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  storage.Storage
	hub    *report.Hub
	router *mux.Router
}

func newApp(cfg config.Config, logger *slog.Logger, fetcher server.Fetcher) (*app, error) {
	store, disk, err := server.InitializeStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if fetcher == nil {
		fetcher = gateway.New(gateway.ConfigFrom(cfg), logger)
	}

	hub := report.NewHub(logger)
	runs := &monitor.RunMonitor{}
	svc := server.NewService(server.ServiceConfig{
		Fetcher:  fetcher,
		Pipeline: pipeline.New(pipeline.Config{Logger: logger, Metrics: pipeline.NewMetrics(reg)}),
		Store:    store,
		Sinks:    []report.Sink{hub},
		Runs:     runs,
		Logger:   logger,
	})
	handler := server.NewHandler(server.HandlerConfig{
		Service:     svc,
		Store:       store,
		Hub:         hub,
		Runs:        runs,
		Disk:        disk,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HTTPMetrics: server.NewHTTPMetrics(reg),
		Version:     version,
		Logger:      logger,
	})

	router := mux.NewRouter()
	server.SetupRoutes(router, handler, cfg.Port)

	return &app{cfg: cfg, logger: logger, store: store, hub: hub, router: router}, nil
}

// start launches the hub and the maintenance loops.
func (a *app) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()
	go server.RunRetention(ctx, server.Retention{Store: a.store, Keep: a.cfg.Retention, Logger: a.logger}, wg)
	go server.RunBadgerGC(ctx, a.store, a.logger, wg)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, "damwatch-server")
	slog.SetDefault(logger)

	if cfg.GatewayUsername == "" {
		logger.Warn("GATEWAY_USERNAME is empty; gateway requests are sent without credentials")
	}

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	a.start(ctx, &wg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		logger.Info("server listening",
			"addr", "http://localhost:"+cfg.Port,
			"gateway", cfg.GatewayBaseURL,
			"nodes", cfg.GatewayNodes,
			"backend", cfg.StorageBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	// Stop background loops before waiting on them.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("background tasks stopped")
	case <-time.After(5 * time.Second):
		logger.Warn("background tasks did not stop in time")
	}
}
