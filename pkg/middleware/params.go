package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-ivr/pkg/errors"
)

const maxCallIDLen = 64

// ValidateCallIDParam rejects call ids that are empty, overlong or contain
// characters outside [A-Za-z0-9_-].
func ValidateCallIDParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param(paramName)
		if id == "" {
			errors.BadRequest(c, paramName+" parameter is required")
			return
		}
		if len(id) > maxCallIDLen {
			errors.BadRequest(c, "invalid "+paramName+" parameter: too long")
			return
		}
		for _, r := range id {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				errors.BadRequest(c, "invalid "+paramName+" parameter")
				return
			}
		}
		c.Next()
	}
}
