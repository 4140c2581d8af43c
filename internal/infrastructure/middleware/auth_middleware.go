package middleware

import (
	"strings"

	"twintalk/internal/core/services"
	apperrors "twintalk/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Keys set on the gin context once a bearer token has been verified.
const (
	ContextUserID      = "user_id"
	ContextDisplayName = "display_name"
)

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			abortWithError(c, apperrors.NewUnauthorizedError("authorization header required"))
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, apperrors.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWithError(c, apperrors.NewUnauthorizedError(err.Error()).WithCause(err))
			return
		}

		c.Set(ContextUserID, string(claims.UserID))
		c.Set(ContextDisplayName, claims.DisplayName)
		c.Next()
	}
}

// OptionalAuthMiddleware records the caller's identity when a valid token is
// present and lets anonymous requests through.
func OptionalAuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				c.Set(ContextUserID, string(claims.UserID))
				c.Set(ContextDisplayName, claims.DisplayName)
			}
		}
		c.Next()
	}
}
