package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/container"
	"github.com/zfogg/friendlypix/internal/database"
	"github.com/zfogg/friendlypix/internal/handlers"
	"github.com/zfogg/friendlypix/internal/jobs"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"github.com/zfogg/friendlypix/internal/validation"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.FatalWithFields("Failed to load config", err)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		logger.FatalWithFields("Failed to initialize logger", err)
	}
	defer logger.Close()
	log := logger.Log

	log.Info("=== FriendlyPix fan-out backend starting ===", zap.String("environment", cfg.Environment))
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	if cfg.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName:  handlers.ServiceName,
			Environment:  cfg.Environment,
			OTLPEndpoint: cfg.OTLPEndpoint,
			SamplingRate: cfg.SamplingRate,
		})
		if err != nil {
			log.Warn("Tracing disabled", zap.Error(err))
		} else {
			defer shutdownTracer(context.Background())
		}
	}

	c, err := container.Build(ctx, cfg, log)
	if err != nil {
		logger.FatalWithFields("Failed to build container", err)
	}
	if err := database.Migrate(c.DB()); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}
	if err := validation.NewServiceValidator(cfg.RequiredServices, c.HealthChecks(), log).ValidateServices(ctx); err != nil {
		logger.FatalWithFields("Required service unavailable", err)
	}

	var scheduler *jobs.Scheduler
	if cfg.JobInterval > 0 {
		scheduler = jobs.NewScheduler(c.Jobs(), cfg.JobInterval, log)
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Give outstanding cascades 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := c.Cleanup(shutdownCtx); err != nil {
		log.Warn("Cleanup failed", zap.Error(err))
	}
	log.Info("Server exited")
}
