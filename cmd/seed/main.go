// Package main seeds the database with an initial admin user.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"arena/internal/storage/postgres"
	"arena/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	username := getEnv("ADMIN_USERNAME", "admin")
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("ADMIN_PASSWORD not set")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalw("failed to hash password", "error", err)
	}

	txm := postgres.NewTxManager(pool)
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
			Insert("users").
			SetMap(map[string]any{
				"first_name":        "Admin",
				"last_name":         "Admin",
				"username":          username,
				"password":          string(hash),
				"access_level":      0,
				"registration_time": time.Now().UTC(),
			}).
			Suffix("ON CONFLICT (username) DO NOTHING").
			ToSql()
		if err != nil {
			return err
		}
		_, err = txm.GetQuerier(ctx).Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}
	log.Infow("admin user ready", "username", username)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
