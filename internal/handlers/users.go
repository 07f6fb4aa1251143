package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskflow/backend/internal/services"
)

type UserHandler struct {
	db          *gorm.DB
	userService services.UserService
	bcryptCost  int
}

func NewUserHandler(db *gorm.DB, userService services.UserService, bcryptCost int) *UserHandler {
	return &UserHandler{db: db, userService: userService, bcryptCost: bcryptCost}
}

// Register creates a user account. Admin only; the seeded admin is the
// bootstrap account.
func (h *UserHandler) Register(c *gin.Context) {
	var req services.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	user, err := h.userService.RegisterUser(h.db, req, h.bcryptCost)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))

	users, total, err := h.userService.ListUsers(h.db, services.UserFilter{
		Role:     c.Query("role"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
	})
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid user id")
		return
	}

	user, err := h.userService.GetUser(h.db, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) SetActive(c *gin.Context) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid user id")
		return
	}

	var input struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "is_active is required")
		return
	}

	user, err := h.userService.SetActive(h.db, id, *input.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
