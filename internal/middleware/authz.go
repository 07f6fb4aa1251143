package middleware

import (
	"errors"
	"net/http"
	"strings"

	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextUserRole = "user_role"
)

// RequireAuth verifies the Bearer credential and stores the caller identity
// on the request context. Missing, malformed and expired tokens get distinct
// error kinds.
func RequireAuth(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Authorization header is required",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Authorization header must use Bearer token",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := authService.VerifyAccessToken(tokenStr)
		if err != nil {
			kind := "invalid_token"
			if errors.Is(err, services.ErrExpiredCredential) {
				kind = "expired_token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   kind,
				"message": "Token validation failed",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextUserRole, claims.Role)

		c.Next()
	}
}

// RequireRole gates a route on the caller's role. Admins pass every gate.
func RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextUserRole)
		roleStr, _ := role.(string)

		if roleStr == "admin" {
			c.Next()
			return
		}

		for _, required := range requiredRoles {
			if roleStr == required {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "insufficient_role",
			"message": "User role does not have access to this resource",
		})
	}
}

// CallerFromContext rebuilds the service-layer caller from request context.
func CallerFromContext(c *gin.Context) (services.Caller, bool) {
	userIDValue, exists := c.Get(ContextUserID)
	if !exists {
		return services.Caller{}, false
	}
	userID, ok := userIDValue.(uuid.UUID)
	if !ok {
		return services.Caller{}, false
	}

	roleValue, _ := c.Get(ContextUserRole)
	role, _ := roleValue.(string)

	return services.Caller{ID: userID, Role: role}, true
}
