package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/api"
	"github.com/liamashdown/tradeintel/internal/cache"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/processor"
	"github.com/liamashdown/tradeintel/internal/ratelimit"
	"github.com/liamashdown/tradeintel/internal/secrets"
	"github.com/liamashdown/tradeintel/internal/storage"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting tradeintel service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"environment":     cfg.Environment,
		"database":        secrets.RedactDSN(cfg.DatabaseDSN),
		"http_port":       cfg.HTTPPort,
		"cache_ttl":       cfg.CacheTTL.String(),
		"store_timeout":   cfg.StoreTimeout.String(),
		"api_rps":         cfg.APIRPS,
		"store_rps":       cfg.StoreRPS,
		"analysis_config": cfg.AnalysisConfigFile,
	}).Info("Configuration loaded")

	// Initialize database
	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	log.Info("Database connected")

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.WithError(err).Fatal("Failed to run database migrations")
		}
		log.Info("Database migrations complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.New()

	// Analysis cache, swept in the background
	analysisCache := cache.New(clk, cfg.CacheTTL, log)
	go analysisCache.Run(ctx, cfg.CacheSweep)

	// Bound the read rate the analyzers put on MySQL
	var store anomaly.Store = db
	if cfg.StoreRPS > 0 {
		store = storage.NewThrottled(db, ratelimit.New(cfg.StoreRPS, clk))
	}

	proc := processor.New(cfg, store, analysisCache, clk, nil, log)

	srv := api.NewServer(proc, db, ratelimit.New(cfg.APIRPS, clk), log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	cancel()

	log.Info("Graceful shutdown complete")
}
