package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
)

type ChatHandler struct {
	db        *gorm.DB
	generator services.GenerationService
	notifier  services.NotificationService
}

func NewChatHandler(db *gorm.DB, generator services.GenerationService, notifier services.NotificationService) *ChatHandler {
	return &ChatHandler{db: db, generator: generator, notifier: notifier}
}

func (h *ChatHandler) GenerateTasks(c *gin.Context) {
	var input struct {
		Prompt         string `json:"prompt" binding:"required"`
		ProjectContext string `json:"project_context"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "prompt is required")
		return
	}

	genCtx, err := h.buildGenerationContext(input.ProjectContext)
	if err != nil {
		respondError(c, err)
		return
	}

	drafts, err := h.generator.GenerateTasks(c.Request.Context(), input.Prompt, *genCtx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"drafts": drafts})
}

func (h *ChatHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openai_configured":   h.generator.Available(),
		"telegram_configured": h.notifier.Available(),
	})
}

// buildGenerationContext snapshots open tasks and team performance so the
// model drafts tasks that fit the current workload.
func (h *ChatHandler) buildGenerationContext(projectContext string) (*services.GenerationContext, error) {
	var openTasks []models.Task
	if err := h.db.Where("status <> ?", models.StatusCompleted).
		Order("created_at desc").
		Limit(10).
		Find(&openTasks).Error; err != nil {
		return nil, err
	}

	var teamSize int64
	if err := h.db.Model(&models.User{}).Where("is_active = ?", true).Count(&teamSize).Error; err != nil {
		return nil, err
	}

	var avgScore float64
	row := h.db.Model(&models.User{}).
		Where("is_active = ?", true).
		Select("COALESCE(AVG(performance_score), 0)").
		Row()
	if err := row.Scan(&avgScore); err != nil {
		return nil, err
	}

	return &services.GenerationContext{
		ProjectContext: projectContext,
		OpenTasks:      openTasks,
		TeamSize:       int(teamSize),
		AverageScore:   avgScore,
	}, nil
}
