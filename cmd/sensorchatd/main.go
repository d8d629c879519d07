package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/alert"
	"sensorchat-backend/internal/api"
	"sensorchat-backend/internal/db"
	"sensorchat-backend/internal/endpoint"
	"sensorchat-backend/internal/llm"
	"sensorchat-backend/internal/poller"
	"sensorchat-backend/internal/quota"
	"sensorchat-backend/internal/sensorapi"
	"sensorchat-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "sensorchat ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if len(cfg.SensorAPI.CandidateURLs) == 0 && cfg.SensorAPI.FallbackURL == "" {
		logger.Fatalf("sensor_api.candidate_urls or sensor_api.fallback_url must be configured")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	resolver := endpoint.NewResolver(&cfg.SensorAPI)
	client := sensorapi.NewClient(resolver, &cfg.SensorAPI)
	generator := llm.NewGenerator(&cfg.LLM)
	tracker := quota.NewTracker(appStore, cfg.LLM.Limits)

	var webpushOptions *webpush.Options
	var pool *alert.WorkerPool
	if cfg.Alerts.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("VAPID keys must be configured when alerts are enabled")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = alert.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		logger.Printf("alert worker pool started with %d worker(s)", cfg.WorkerPool.Size)
	}

	pollerSvc := poller.NewService(cfg, client, appStore, pool)
	go pollerSvc.Run(ctx)

	handler := api.NewHandler(appStore, client, generator, tracker, webpushOptions)
	router := api.NewRouter(handler, resolver, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
