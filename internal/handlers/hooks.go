package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/hooks"
)

// DispatchHook runs the handlers registered for a store or identity event
// POST /api/v1/hooks/:event
func (h *Handlers) DispatchHook(c *gin.Context) {
	var p hooks.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		h.respondError(c, apperrors.BadRequest("invalid hook payload").WithDetails(err.Error()))
		return
	}

	out, err := h.hooks.Dispatch(c.Request.Context(), c.Param("event"), p)
	if errors.Is(err, hooks.ErrUnknownEvent) {
		h.respondError(c, apperrors.NotFound("hook event"))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
