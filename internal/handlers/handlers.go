package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/friendlypix/internal/cascade"
	"github.com/zfogg/friendlypix/internal/container"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/hooks"
	"github.com/zfogg/friendlypix/internal/jobs"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/middleware"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/profiles"
	"go.uber.org/zap"
)

// Handlers contains all HTTP trigger handlers
type Handlers struct {
	cascade  *cascade.Service
	filter   *moderation.Filter
	guard    *moderation.Guard
	blurrer  moderation.OnFlagged
	jobs     *jobs.Runner
	profiles *profiles.Publisher
	hooks    *hooks.Dispatcher
	log      *zap.Logger
}

// NewHandlers creates the handlers from an assembled container
func NewHandlers(c *container.Container) *Handlers {
	h := &Handlers{
		cascade:  c.Cascade(),
		filter:   c.Filter(),
		guard:    c.Guard(),
		jobs:     c.Jobs(),
		profiles: c.Profiles(),
		hooks:    c.Hooks(),
		log:      c.Logger(),
	}
	if d := c.Hooks(); d != nil && d.Blurrer != nil {
		h.blurrer = d.Blurrer.OnFlagged
	}
	return h
}

func (h *Handlers) logger() *zap.Logger {
	return logger.OrDefault(h.log)
}

// respondError writes err in the API error envelope
func (h *Handlers) respondError(c *gin.Context, err error) {
	apiErr := apperrors.FromError(err)
	status := apiErr.Status
	if status == 0 {
		status = apiErr.Code.StatusCode()
	}
	if status >= http.StatusInternalServerError {
		h.logger().Error("Request failed",
			logger.WithRequestID(middleware.RequestID(c)),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.Error(err)
	}
	c.JSON(status, gin.H{"error": apiErr})
}
