package middleware

import (
	"errors"
	"net/http"
	"strings"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and stores the caller's user id
// in the context. It never consults storage.
func AuthMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}

		claims, err := tokens.Validate(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				unauthorized(c, "Token expired")
			} else {
				unauthorized(c, "Invalid token")
			}
			return
		}

		if claims.Type != auth.AccessToken {
			unauthorized(c, "Invalid token type")
			return
		}

		c.Set(auth.UserIDKey, claims.UserID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperror.ErrorResponse{Error: message, Code: "UNAUTHORIZED"})
}
