// Package main is the entry point for the arena data server: the generic
// entity API, the aggregated submission view, the file store and the live
// change feed, backed by one PostgreSQL database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arena/internal/auth"
	"arena/internal/blob"
	"arena/internal/catalog"
	"arena/internal/events"
	v1 "arena/internal/http/v1"
	"arena/internal/http/v1/handlers"
	"arena/internal/http/v1/middleware"
	"arena/internal/storage/postgres"
	"arena/internal/submissions"
	"arena/internal/trigger"
	"arena/internal/watcher"
	"arena/pkg/logger"
)

func main() {
	// Local development reads a .env file; absence is fine.
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting arena server")

	dsn := mustEnv("DATABASE_URL")
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	registry := catalog.Build()
	txm := postgres.NewTxManager(pool)
	store := postgres.NewStore(txm)

	// Make sure the notify triggers match the running catalog.
	if err := trigger.NewInstaller(txm, registry).Install(ctx); err != nil {
		log.Fatalw("failed to install notify triggers", "error", err)
	}
	log.Info("notify triggers installed")

	blobStore, err := blob.Open(ctx)
	if err != nil {
		log.Fatalw("failed to open blob store", "error", err)
	}
	log.Infow("blob store ready", "driver", blobStore.Driver())

	// --- Watcher and event hub ---
	w := watcher.New(dsn)
	hub := events.NewHub()
	if err := hub.Attach(w, registry); err != nil {
		log.Fatalw("failed to attach event hub", "error", err)
	}

	watchCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	go func() {
		if err := w.Run(watchCtx); err != nil && watchCtx.Err() == nil {
			log.Errorw("watcher stopped", "error", err)
		}
	}()

	// --- Auth ---
	var validator middleware.JWTValidator
	var authHandler *handlers.AuthHandler
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		tokens, err := auth.NewTokenService(secret, getEnvDuration("JWT_TTL", 12*time.Hour))
		if err != nil {
			log.Fatalw("failed to initialize token service", "error", err)
		}
		validator = tokens
		authHandler = handlers.NewAuthHandler(txm, tokens)
	} else {
		log.Warn("JWT_SECRET not set, write surface is unauthenticated")
	}

	submissionService := submissions.NewService(submissions.NewRepo(txm), txm)

	router := v1.NewRouter(v1.RouterConfig{
		Pool:         pool,
		TxManager:    txm,
		Store:        store,
		Registry:     registry,
		Submissions:  submissionService,
		Blobs:        blobStore,
		Hub:          hub,
		Logger:       log,
		JWTValidator: validator,
		TokenIssuer:  authHandler,
	})

	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /events connections are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopWatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
