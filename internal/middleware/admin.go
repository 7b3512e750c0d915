package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/friendlypix/internal/auth"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/logger"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// RequireAdmin checks the bearer token and the admin claim of the account
// it names.
func RequireAdmin(tokens auth.TokenValidator, log *zap.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abort(c, apperrors.Unauthorized("missing bearer token"))
			return
		}

		user, err := tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			log.Debug("Rejected token", zap.Error(err))
			abort(c, apperrors.Unauthorized("invalid token"))
			return
		}
		c.Set(userIDKey, user.ID)

		if !user.IsAdmin() {
			abort(c, apperrors.Forbidden("admin access required"))
			return
		}
		c.Next()
	}
}

// UserID returns the account set by RequireAdmin
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func abort(c *gin.Context, err *apperrors.APIError) {
	status := err.Status
	if status == 0 {
		status = err.Code.StatusCode()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err})
}
