package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-ivr/pkg/auth"
	"github.com/troikatech/voice-ivr/pkg/errors"
)

// AuthMiddleware requires a valid admin bearer token.
func AuthMiddleware(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		// Browsers cannot set headers on websocket upgrades.
		if authHeader == "" && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			if token := c.Query("access_token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			errors.Unauthorized(c, "authorization header required")
			return
		}

		bearerToken := strings.SplitN(authHeader, " ", 2)
		if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
			errors.Unauthorized(c, "invalid authorization format")
			return
		}

		claims, err := issuer.Parse(bearerToken[1])
		if err != nil {
			errors.Unauthorized(c, "invalid or expired token")
			return
		}
		if claims.Role != auth.RoleAdmin {
			errors.Forbidden(c, "insufficient permissions")
			return
		}

		c.Set("admin_user", claims.Subject)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}
