package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"courier/internal/config"
	"courier/internal/devserver"
	"courier/internal/logger"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lg := logger.New("devserver")

	// Initialize New Relic FIRST (before Redis so we can instrument it).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			lg.Warn("failed to initialize New Relic", logger.Error(err))
		} else {
			lg.Info("New Relic enabled", logger.String("app", cfg.NewRelic.AppName))
		}
	}

	// Initialize the geo index, falling back to the in-memory one when Redis
	// is not configured.
	var redisClient *redis.Client
	var index devserver.GeoIndex = devserver.NewMemoryGeoIndex()
	if cfg.Redis.Enabled {
		redisClient, err = devserver.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		index = devserver.NewRedisGeoIndex(redisClient)
		lg.Info("Connected to Redis", logger.String("addr", cfg.Redis.Addr))
	}

	// Wire dependencies.
	store := devserver.NewDocumentStore()
	presence := devserver.NewPresenceStore(index, 3*cfg.Presence.HeartbeatInterval)
	handler := devserver.NewHandler(store, presence, lg)

	router := devserver.NewRouter(devserver.RouterDeps{
		Handler:     handler,
		RedisClient: redisClient,
		NewRelicApp: nrApp,
		AuthSecret:  cfg.DevServer.AuthSecret,
	})

	server := &http.Server{
		Addr:         ":" + cfg.DevServer.Port,
		Handler:      router,
		ReadTimeout:  cfg.DevServer.ReadTimeout,
		WriteTimeout: cfg.DevServer.WriteTimeout,
	}

	// Start server in goroutine.
	go func() {
		lg.Info("Starting dev server", logger.String("port", cfg.DevServer.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("Shutting down dev server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	lg.Info("Dev server exited")
}
