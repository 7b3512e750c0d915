package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/moderation"
)

// Moderate returns the sanitized form of a piece of text
// POST /api/v1/moderate
func (h *Handlers) Moderate(c *gin.Context) {
	var req struct {
		Text *string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.ValidationError("text", err.Error()))
		return
	}
	c.JSON(http.StatusOK, h.filter.Moderate(*req.Text))
}

// CheckImage classifies an image and, unless dry_run is set, blurs it when
// the safety policy flags it
// POST /api/v1/images/check
func (h *Handlers) CheckImage(c *gin.Context) {
	if h.guard == nil {
		h.respondError(c, apperrors.ServiceUnavailable("image classifier"))
		return
	}

	var req struct {
		ImageRef string `json:"image_ref" binding:"required"`
		DryRun   bool   `json:"dry_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.ValidationError("image_ref", err.Error()))
		return
	}

	var onFlagged moderation.OnFlagged
	if !req.DryRun {
		onFlagged = h.blurrer
	}
	res, err := h.guard.BlurCheck(c.Request.Context(), req.ImageRef, onFlagged)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
