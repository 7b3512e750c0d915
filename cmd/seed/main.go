package main

import (
	"context"
	"fmt"
	"os"

	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/container"
	"github.com/zfogg/friendlypix/internal/database"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/seed"
	"go.uber.org/zap"
)

func main() {
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	var counts seed.Counts
	switch command {
	case "dev":
		counts = seed.DevCounts
	case "test":
		counts = seed.TestCounts
	case "clean":
	default:
		fmt.Println("Usage: seed [dev|test|clean]")
		fmt.Println("  dev   - Seed development data")
		fmt.Println("  test  - Seed a minimal data set")
		fmt.Println("  clean - Remove all seeded tree data (use with caution)")
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

	ctx := context.Background()
	c, err := container.Build(ctx, cfg, logger.Log)
	if err != nil {
		logger.FatalWithFields("Failed to build container", err)
	}
	defer c.Cleanup(ctx)
	if err := database.Migrate(c.DB()); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	seeder := seed.NewSeeder(c.Store(), c.Users(), 0, logger.Log)
	if command == "clean" {
		if err := seeder.Clean(ctx); err != nil {
			logger.FatalWithFields("Clean failed", err)
		}
		logger.Log.Info("Seed data cleaned")
		return
	}

	res, err := seeder.Seed(ctx, counts)
	if err != nil {
		logger.FatalWithFields("Seeding failed", err)
	}
	logger.Log.Info("Database seeded",
		zap.String("set", command),
		zap.Int("users", len(res.Users)),
		zap.Int("posts", len(res.Posts)))
}
