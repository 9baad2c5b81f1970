// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/restockcast/internal/api"
	"github.com/andresuchdata/restockcast/internal/cache"
	"github.com/andresuchdata/restockcast/internal/config"
	"github.com/andresuchdata/restockcast/internal/export"
	"github.com/andresuchdata/restockcast/internal/notify"
	"github.com/andresuchdata/restockcast/internal/repository/postgres"
	"github.com/andresuchdata/restockcast/internal/service"
	"github.com/andresuchdata/restockcast/internal/storage"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := postgres.Migrate(context.Background(), db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	accCache, err := cache.NewAccuracyCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("accuracy cache unavailable, continuing without it")
		accCache = cache.NewNoopAccuracyCache()
	}

	salesRepo := postgres.NewSalesRepository(db)
	forecastRepo := postgres.NewForecastRepository(db)
	snapshotRepo := postgres.NewSnapshotRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	productRepo := postgres.NewProductRepository(db)

	hub := notify.NewHub()

	var exporter *export.Exporter
	if cfg.Storage.Enabled {
		store, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to create storage client: %v", err)
		}
		if err := store.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("Failed to prepare storage bucket: %v", err)
		}
		exporter = export.NewExporter(alertRepo, productRepo, store)
	}

	forecastService := service.NewForecastService(service.Deps{
		Sales:     salesRepo,
		Forecasts: forecastRepo,
		Snapshots: snapshotRepo,
		Products:  productRepo,
		Alerts:    alertRepo,
		Notifier:  hub,
		Cache:     accCache,
		Exporter:  exporter,
		Forecast:  cfg.Forecast,
	})

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{
		ForecastService: forecastService,
		Hub:             hub,
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
