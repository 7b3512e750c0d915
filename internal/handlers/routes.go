package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/friendlypix/internal/container"
	"github.com/zfogg/friendlypix/internal/middleware"
	"github.com/zfogg/friendlypix/internal/validation"
)

// ServiceName identifies the backend in health checks and traces
const ServiceName = "friendlypix-fanout"

// NewRouter builds the gin engine with middleware and every trigger route
func NewRouter(c *container.Container) *gin.Engine {
	h := NewHandlers(c)
	cfg := c.Config()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware(c.Logger()))
	r.Use(middleware.MetricsMiddleware())
	if cfg.TracingEnabled {
		r.Use(middleware.TracingMiddleware(ServiceName))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Cron-Key"}
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	services := validation.NewServiceValidator(cfg.RequiredServices, c.HealthChecks(), c.Logger())
	r.GET("/health", func(ctx *gin.Context) {
		status, code := "ok", http.StatusOK
		checks := services.Status(ctx.Request.Context())
		for _, name := range cfg.RequiredServices {
			if checks[name] != "ok" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		ctx.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   ServiceName,
			"services":  checks,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := middleware.RequireAdmin(c.Tokens(), c.Logger())
	cron := middleware.RequireCronKey(cfg.CronKey)

	api := r.Group("/api/v1")
	{
		cascades := api.Group("/cascade", admin)
		{
			cascades.POST("/:kind/*id", h.RunCascadeDelete)
			cascades.GET("/:kind/*id", h.GetCascadeReport)
		}

		api.POST("/moderate", h.Moderate)
		api.POST("/images/check", h.CheckImage)

		jobs := api.Group("/jobs", cron)
		{
			jobs.GET("/delete-old-posts", h.DeleteOldPosts)
			jobs.POST("/delete-old-posts", h.DeleteOldPosts)
			jobs.GET("/delete-inactive-accounts", h.DeleteInactiveAccounts)
			jobs.POST("/delete-inactive-accounts", h.DeleteInactiveAccounts)
		}

		api.POST("/profiles/update-all", admin, h.UpdateAllProfiles)
		api.POST("/hooks/:event", cron, h.DispatchHook)
	}
	return r
}
