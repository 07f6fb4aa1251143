package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/backend/internal/services"
)

// respondError translates service sentinel errors into the JSON error
// envelope. Unknown errors become an opaque 500 so internals never leak.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "invalid username or password"})
	case errors.Is(err, services.ErrExpiredCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "expired_token", "message": "token has expired"})
	case errors.Is(err, services.ErrMalformedCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "token is malformed or has an invalid signature"})
	case errors.Is(err, services.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "account_disabled", "message": "account is deactivated"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "you do not have access to this resource"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "resource not found"})
	case errors.Is(err, services.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_username", "message": "username is already taken"})
	case errors.Is(err, services.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_email", "message": "email is already registered"})
	case errors.Is(err, services.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured", "message": err.Error()})
	case errors.Is(err, services.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_unavailable", "message": err.Error()})
	case errors.Is(err, services.ErrUnparsableResponse):
		c.JSON(http.StatusBadGateway, gin.H{"error": "unparsable_response", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	}
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": message})
}
