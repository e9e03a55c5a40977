// cmd/editor-service/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pygowave/config"
	"pygowave/internal/broadcast"
	"pygowave/internal/editor"
	"pygowave/internal/logging"
	"pygowave/internal/metrics"
	"pygowave/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	if err := storage.Migrate(cfg.PostgresDSN); err != nil {
		logger.Warn("migrations failed, continuing without schema guarantees", zap.Error(err))
	}

	store, err := storage.Open(cfg.PostgresDSN)
	if err != nil {
		logger.Warn("database unavailable, running without persistence", zap.Error(err))
		store = nil
	}

	bcast, err := broadcast.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Warn("redis unavailable, running single-instance without cross-server fanout", zap.Error(err))
		bcast = nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	service := editor.NewService(cfg, logger, store, bcast, m)
	if err := service.Start(); err != nil {
		logger.Fatal("failed to start service", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", service.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Env == "dev" {
		fs := http.FileServer(http.Dir(cfg.StaticDir))
		mux.Handle("/", fs)
		logger.Info("serving static files", zap.String("dir", cfg.StaticDir))
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		service.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		metricsServer.Shutdown(ctx)
	}()

	logger.Info("server running", zap.String("addr", cfg.ListenAddr), zap.String("metrics_addr", cfg.MetricsAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
