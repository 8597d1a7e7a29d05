// Package main creates the database schema and installs the notify triggers
// for every cataloged entity. Safe to re-run: tables are created if missing,
// triggers are replaced in place.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"arena/internal/catalog"
	"arena/internal/storage/postgres"
	"arena/internal/trigger"
	"arena/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	registry := catalog.Build()
	txm := postgres.NewTxManager(pool)

	if err := postgres.CreateSchema(ctx, txm, registry); err != nil {
		log.Fatalw("failed to create schema", "error", err)
	}
	log.Infow("schema ready", "tables", len(registry.List()))

	if err := trigger.NewInstaller(txm, registry).Install(ctx); err != nil {
		log.Fatalw("failed to install notify triggers", "error", err)
	}
	log.Info("notify triggers installed")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
