package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/services"
)

type AuthHandler struct {
	db          *gorm.DB
	authService services.AuthService
	userService services.UserService
}

func NewAuthHandler(db *gorm.DB, authService services.AuthService, userService services.UserService) *AuthHandler {
	return &AuthHandler{db: db, authService: authService, userService: userService}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "username and password are required")
		return
	}

	user, err := h.authService.LoginUser(h.db, input.Username, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	pair, err := h.authService.GenerateTokenPair(user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
		"user":          user,
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var input struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "refresh_token is required")
		return
	}

	pair, err := h.authService.RefreshTokenPair(h.db, input.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
	})
}

// Logout is a client-side operation with stateless tokens. The endpoint
// exists so clients have a uniform auth surface.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	user, err := h.userService.GetUser(h.db, caller.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	var input struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "current_password and new_password (min 6 chars) are required")
		return
	}

	if err := h.authService.ChangePassword(h.db, caller.ID, input.CurrentPassword, input.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
