package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	notifier    services.NotificationService
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService, notifier services.NotificationService) *TaskHandler {
	return &TaskHandler{db: db, taskService: taskService, notifier: notifier}
}

type taskRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Status           string   `json:"status"`
	Priority         string   `json:"priority"`
	Assignee         string   `json:"assignee"`
	PerformanceDelta *float64 `json:"performance_delta"`
	DueDate          string   `json:"due_date"`
	AIGenerated      bool     `json:"ai_generated"`
	AIContext        string   `json:"ai_context"`
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if req.Title == "" {
		respondBadRequest(c, "title is required")
		return
	}

	input := services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		Assignee:    req.Assignee,
		AIGenerated: req.AIGenerated,
		AIContext:   req.AIContext,
	}
	if req.PerformanceDelta != nil {
		input.PerformanceDelta = *req.PerformanceDelta
	}
	if req.DueDate != "" {
		due, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			respondBadRequest(c, "due_date must be RFC3339")
			return
		}
		input.DueDate = &due
	}

	task, err := h.taskService.CreateTask(h.db, caller, input)
	if err != nil {
		respondError(c, err)
		return
	}

	if task.AssigneeID != nil {
		h.notifyAssignment(task)
	}

	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid task id")
		return
	}

	task, err := h.taskService.GetTask(h.db, caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	filter := services.TaskFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		SortBy:   c.DefaultQuery("sortBy", "created_at"),
		Order:    c.DefaultQuery("order", "desc"),
		Page:     page,
		PageSize: pageSize,
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		id, err := uuid.FromString(assignee)
		if err != nil {
			respondBadRequest(c, "invalid assignee_id")
			return
		}
		filter.AssigneeID = &id
	}

	tasks, total, err := h.taskService.ListTasks(h.db, caller, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": total,
		"page":  page,
	})
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid task id")
		return
	}

	var req struct {
		Title            *string  `json:"title"`
		Description      *string  `json:"description"`
		Status           *string  `json:"status"`
		Priority         *string  `json:"priority"`
		Assignee         *string  `json:"assignee"`
		PerformanceDelta *float64 `json:"performance_delta"`
		DueDate          *string  `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	patch := services.TaskPatch{
		Title:            req.Title,
		Description:      req.Description,
		Status:           req.Status,
		Priority:         req.Priority,
		Assignee:         req.Assignee,
		PerformanceDelta: req.PerformanceDelta,
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			patch.ClearDueDate = true
		} else {
			due, err := time.Parse(time.RFC3339, *req.DueDate)
			if err != nil {
				respondBadRequest(c, "due_date must be RFC3339 or empty to clear")
				return
			}
			patch.DueDate = &due
		}
	}

	task, changes, err := h.taskService.UpdateTask(h.db, caller, id, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	if changes.Reassigned && task.AssigneeID != nil {
		h.notifyAssignment(task)
	}
	if changes.StatusChanged {
		h.notifyStatusChange(task, changes.OldStatus)
	}

	c.JSON(http.StatusOK, task)
}

// BulkUpdate applies one patch to many tasks. Tasks the caller may not edit
// or that no longer exist are skipped rather than failing the batch.
func (h *TaskHandler) BulkUpdate(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	var req struct {
		TaskIDs []string `json:"task_ids" binding:"required,min=1"`
		Updates struct {
			Status   *string `json:"status"`
			Priority *string `json:"priority"`
			Assignee *string `json:"assignee"`
		} `json:"updates"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "task_ids and updates are required")
		return
	}
	if req.Updates.Status == nil && req.Updates.Priority == nil && req.Updates.Assignee == nil {
		respondBadRequest(c, "updates must set status, priority or assignee")
		return
	}
	if req.Updates.Status != nil && !models.ValidStatus(*req.Updates.Status) {
		respondBadRequest(c, "invalid status")
		return
	}
	if req.Updates.Priority != nil && !models.ValidPriority(*req.Updates.Priority) {
		respondBadRequest(c, "invalid priority")
		return
	}

	patch := services.TaskPatch{
		Status:   req.Updates.Status,
		Priority: req.Updates.Priority,
		Assignee: req.Updates.Assignee,
	}

	updated := 0
	skipped := []string{}
	for _, raw := range req.TaskIDs {
		id, err := uuid.FromString(raw)
		if err != nil {
			skipped = append(skipped, raw)
			continue
		}

		task, changes, err := h.taskService.UpdateTask(h.db, caller, id, patch)
		switch {
		case err == nil:
			updated++
			if changes.Reassigned && task.AssigneeID != nil {
				h.notifyAssignment(task)
			}
			if changes.StatusChanged {
				h.notifyStatusChange(task, changes.OldStatus)
			}
		case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrNotFound):
			skipped = append(skipped, raw)
		default:
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"updated_count": updated,
		"skipped":       skipped,
	})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid task id")
		return
	}

	if err := h.taskService.DeleteTask(h.db, caller, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusNoContent, nil)
}

func (h *TaskHandler) Stats(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	stats, err := h.taskService.Stats(h.db, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *TaskHandler) Kanban(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token", "message": "authentication required"})
		return
	}

	board, err := h.taskService.Kanban(h.db, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// Notification failures never fail the request; delivery is best effort.

func (h *TaskHandler) notifyAssignment(task *models.Task) {
	if h.notifier == nil || !h.notifier.Available() {
		return
	}
	var assignee models.User
	if err := h.db.First(&assignee, "id = ?", task.AssigneeID).Error; err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := h.notifier.Send(ctx, services.FormatAssignment(task, &assignee), ""); err != nil {
			log.Printf("assignment notification failed: %v", err)
		}
	}()
}

func (h *TaskHandler) notifyStatusChange(task *models.Task, oldStatus string) {
	if h.notifier == nil || !h.notifier.Available() {
		return
	}
	message := services.FormatStatusChange(task, oldStatus)
	if task.IsCompleted() && task.AssigneeID != nil {
		var assignee models.User
		if err := h.db.First(&assignee, "id = ?", task.AssigneeID).Error; err == nil {
			message = services.FormatCompletion(task, &assignee)
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := h.notifier.Send(ctx, message, ""); err != nil {
			log.Printf("status notification failed: %v", err)
		}
	}()
}
