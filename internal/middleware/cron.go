package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
)

// RequireCronKey guards scheduled-job endpoints with a shared key passed as
// ?key= or X-Cron-Key. An empty configured key rejects every request.
func RequireCronKey(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		got := c.Query("key")
		if got == "" {
			got = c.GetHeader("X-Cron-Key")
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			abort(c, apperrors.Forbidden("security key does not match"))
			return
		}
		c.Next()
	}
}
