package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/quatton/qfold/pkg/db"
	"github.com/quatton/qfold/pkg/qlog"
)

func main() {
	logger := qlog.NewLogger(qlog.ParseLevel(os.Getenv("LOG_LEVEL")), os.Stderr)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found")
	} else {
		logger.Info("loaded .env file")
	}

	ctx := context.Background()

	var cfg db.Config
	if err := envconfig.Process("DB", &cfg); err != nil {
		logger.Fatal("failed to process env vars", "error", err)
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	logger.Info("running migrations")
	if err := db.Migrate(ctx, database, logger); err != nil {
		logger.Fatal("failed to migrate", "error", err)
	}
}
