package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memorymate/companion/internal/app"
	appconfig "github.com/memorymate/companion/internal/config"
	"github.com/memorymate/companion/internal/llm"
	"github.com/memorymate/companion/internal/server"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
	"github.com/memorymate/companion/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "companion: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := os.Getenv("CONFIG_FILE")

	cfg, err := appconfig.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(cfg.LoggerConfig())
	log.Info("Starting companion service",
		logger.StringField("version", cfg.Version),
		logger.StringField("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Monitoring.MetricsEnabled {
		instance := metrics.NewMetrics(true, true, log)
		m = &instance
		m.Listen(cfg.Monitoring.MetricsPort)
	}

	store, err := app.BuildStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if m != nil {
		store = storage.NewInstrumentedStore(store, m)
	}
	log.Info("Storage backend ready", logger.StringField("backend", cfg.Storage.Backend))

	client, err := llm.NewGeminiClient(ctx, cfg.Gemini, log, m)
	if err != nil {
		return err
	}

	application := app.New(client, store, log)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(application, cfg, log, m).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", logger.IntField("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", logger.ErrorField(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("Companion service stopped")
	return nil
}
