package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/backend/internal/services"
)

type TelegramHandler struct {
	notifier services.NotificationService
}

func NewTelegramHandler(notifier services.NotificationService) *TelegramHandler {
	return &TelegramHandler{notifier: notifier}
}

func (h *TelegramHandler) SendNotification(c *gin.Context) {
	var input struct {
		Message string `json:"message" binding:"required"`
		Target  string `json:"target"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "message is required")
		return
	}

	result, err := h.notifier.Send(c.Request.Context(), input.Message, input.Target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TelegramHandler) Test(c *gin.Context) {
	info, err := h.notifier.TestConnection(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "bot": info})
}

func (h *TelegramHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured": h.notifier.Available(),
	})
}
