package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/xtrntr/nuamexchange/internal/auth"
	"github.com/xtrntr/nuamexchange/internal/config"
	"github.com/xtrntr/nuamexchange/internal/db"
	"github.com/xtrntr/nuamexchange/internal/docstore"

	"golang.org/x/crypto/bcrypt"
)

// Creates the PostgreSQL schema and the initial MongoDB accounts. Safe to
// run repeatedly: the schema is idempotent and users are only created when
// the collection is empty.
func main() {
	configPath := flag.String("config", "", "Path to an optional config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout*4)
	defer cancel()

	database, err := db.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close(ctx)

	if err := database.Migrate(ctx); err != nil {
		logger.Error("failed to create tables", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("postgres schema ready")

	docs, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.ConnectTimeout)
	if err != nil {
		logger.Error("failed to connect to mongodb", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer docs.Close(ctx)

	if err := docs.EnsureIndexes(ctx); err != nil {
		logger.Error("failed to create indexes", slog.String("error", err.Error()))
		os.Exit(1)
	}

	n, err := auth.SeedUsers(ctx, docs, auth.DefaultAccounts, bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to create users", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if n == 0 {
		logger.Info("users already exist, nothing to seed")
		return
	}
	logger.Info("created initial users", slog.Int("count", n))
}
