package main

import (
	"fmt"
	"os"

	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/database"
	"github.com/zfogg/friendlypix/internal/logger"
	"go.uber.org/zap"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command != "up" {
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up - Create or update the tree store and identity tables")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.FatalWithFields("Failed to load config", err)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		logger.FatalWithFields("Failed to initialize logger", err)
	}
	defer logger.Close()

	logger.Log.Info("Connecting to database...", zap.String("driver", cfg.DatabaseDriver))
	db, err := database.Open(cfg)
	if err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}
	defer database.Close(db)

	logger.Log.Info("Running migrations...")
	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Migration failed", err)
	}
	logger.Log.Info("All migrations completed successfully")
}
