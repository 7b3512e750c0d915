package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/middleware"
	"github.com/zfogg/friendlypix/internal/models"
	"go.uber.org/zap"
)

// RunCascadeDelete removes a root entity and every record derived from it
// POST /api/v1/cascade/:kind/*id
func (h *Handlers) RunCascadeDelete(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	id, ok := rootID(c)
	if !ok {
		h.respondError(c, apperrors.ValidationError("id", "required"))
		return
	}

	h.logger().Info("Cascade requested",
		logger.WithKind(string(kind)),
		zap.String("id", id),
		logger.WithUserID(middleware.UserID(c)),
		logger.WithRequestID(middleware.RequestID(c)))

	report, err := h.cascade.RunCascadeDelete(c.Request.Context(), kind, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if !report.Complete() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{
		"complete": report.Complete(),
		"report":   report,
	})
}

// GetCascadeReport returns the cached report of the last cascade for a root
// GET /api/v1/cascade/:kind/*id
func (h *Handlers) GetCascadeReport(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	id, ok := rootID(c)
	if !ok {
		h.respondError(c, apperrors.ValidationError("id", "required"))
		return
	}

	report, ok, err := h.cascade.LastReport(c.Request.Context(), kind, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.respondError(c, apperrors.NotFound("cascade report"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"complete": report.Complete(),
		"report":   report,
	})
}

// rootID reads the catch-all id, which spans segments for compound ids such
// as comment "p1/c1".
func rootID(c *gin.Context) (string, bool) {
	id := strings.Trim(c.Param("id"), "/")
	return id, id != ""
}
