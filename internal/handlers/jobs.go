package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/middleware"
	"go.uber.org/zap"
)

// DeleteOldPosts expires posts past the configured age
// GET|POST /api/v1/jobs/delete-old-posts?key=
func (h *Handlers) DeleteOldPosts(c *gin.Context) {
	res, err := h.jobs.DeleteOldPosts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger().Info("Old posts job finished",
		logger.WithRequestID(middleware.RequestID(c)),
		zap.Int("selected", res.Selected))
	c.JSON(http.StatusOK, res)
}

// DeleteInactiveAccounts removes accounts that have not signed in within
// the inactivity window
// GET|POST /api/v1/jobs/delete-inactive-accounts?key=
func (h *Handlers) DeleteInactiveAccounts(c *gin.Context) {
	res, err := h.jobs.DeleteInactiveAccounts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger().Info("Inactive accounts job finished",
		logger.WithRequestID(middleware.RequestID(c)),
		zap.Int("selected", res.Selected))
	c.JSON(http.StatusOK, res)
}

// UpdateAllProfiles republishes the public profile of every account
// POST /api/v1/profiles/update-all
func (h *Handlers) UpdateAllProfiles(c *gin.Context) {
	n, err := h.profiles.UpdateAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
