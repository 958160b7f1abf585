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

	"github.com/savegress/dosetrack/internal/alerts"
	"github.com/savegress/dosetrack/internal/api"
	"github.com/savegress/dosetrack/internal/cache"
	"github.com/savegress/dosetrack/internal/config"
	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/internal/storage"
	"github.com/savegress/dosetrack/internal/tracker"
	"github.com/savegress/dosetrack/internal/websocket"
	"github.com/savegress/dosetrack/pkg/models"
)

func main() {
	log.Println("Starting DoseTrack...")

	// Load configuration
	cfg := loadConfig()
	log.Printf("Environment: %s", cfg.Server.Environment)

	// Initialize storage
	store, err := initStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := pk.NewRegistry()

	// Redis cache, disabled unless a URL is configured
	levelCache, err := cache.New(cfg.Redis, 2*cfg.Tracker.PollInterval)
	if err != nil {
		log.Printf("Warning: cache disabled: %v", err)
		levelCache, _ = cache.New(config.RedisConfig{}, 0)
	}
	if levelCache.IsEnabled() {
		log.Println("Redis cache connected")
	}

	// Initialize level tracker
	trk := tracker.New(cfg, store, registry)

	// Initialize alerting engine
	alertsEngine := alerts.NewEngine(&cfg.Alerts)
	if err := alertsEngine.Start(ctx); err != nil {
		log.Printf("Warning: Failed to start alerts engine: %v", err)
	}

	// Setup notifiers
	if cfg.Alerts.Channels.Slack != nil && cfg.Alerts.Channels.Slack.WebhookURL != "" {
		alertsEngine.AddNotifier(alerts.NewSlackNotifier(*cfg.Alerts.Channels.Slack))
		log.Println("Slack notifier configured")
	}
	if cfg.Alerts.Channels.Webhook != nil && cfg.Alerts.Channels.Webhook.URL != "" {
		alertsEngine.AddNotifier(alerts.NewWebhookNotifier(*cfg.Alerts.Channels.Webhook))
		log.Println("Webhook notifier configured")
	}
	if cfg.Alerts.Channels.Console || cfg.Server.Environment == "development" {
		alertsEngine.AddNotifier(alerts.NewConsoleNotifier())
	}

	// WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Wire alert state changes to the websocket alert channel
	alertsEngine.SetAlertCallback(func(alert *models.Alert) {
		log.Printf("Alert %s: %s (severity: %s)", alert.State, alert.RuleName, alert.Severity)
		hub.BroadcastAlert(alert)
	})

	// Wire snapshot fan-out
	trk.AddSubscriber(hub.BroadcastLevel)
	trk.AddSubscriber(func(snap *models.LevelSnapshot) {
		if err := levelCache.SetSnapshot(ctx, snap); err != nil {
			log.Printf("Snapshot cache write failed: %v", err)
		}
	})
	if cfg.Alerts.Enabled {
		trk.AddSubscriber(alertsEngine.ProcessSnapshot)
	}

	// Start tracker
	if err := trk.Start(ctx); err != nil {
		log.Fatalf("Failed to start level tracker: %v", err)
	}
	log.Println("Level tracker started")

	// Create API server
	server := api.NewServer(cfg, store, registry, trk, alertsEngine, hub, levelCache)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("DoseTrack API listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down DoseTrack...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	trk.Stop()
	alertsEngine.Stop()
	hub.Stop()
	levelCache.Close()

	log.Println("DoseTrack stopped")
}

func loadConfig() *config.Config {
	configPath := os.Getenv("DOSETRACK_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("Failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}

func initStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Storage.Postgres == nil || cfg.Storage.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres driver selected but no url configured")
		}
		return storage.NewPostgresStorage(cfg.Storage.Postgres.URL,
			int32(cfg.Storage.Postgres.MaxConns), int32(cfg.Storage.Postgres.MinConns))

	case "sqlite":
		return storage.NewSQLiteStorage(cfg.Storage.SQLite.Path)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
