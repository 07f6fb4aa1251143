package services

import (
	"errors"
	"time"

	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Caller identifies the authenticated user a task operation runs as.
type Caller struct {
	ID   uuid.UUID
	Role string
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

type CreateTaskInput struct {
	Title            string
	Description      string
	Priority         string
	Status           string
	Assignee         string // user id or username, empty for unassigned
	PerformanceDelta float64
	DueDate          *time.Time
	AIGenerated      bool
	AIContext        string
}

// TaskPatch carries a partial update; nil fields are left untouched.
type TaskPatch struct {
	Title            *string
	Description      *string
	Priority         *string
	Status           *string
	Assignee         *string // empty string unassigns
	PerformanceDelta *float64
	DueDate          *time.Time
	ClearDueDate     bool
}

// TaskChanges tells the caller what an update actually did, so notification
// side effects can be fired after the transaction commits.
type TaskChanges struct {
	StatusChanged bool
	OldStatus     string
	Reassigned    bool
}

type TaskFilter struct {
	Status     string
	Priority   string
	AssigneeID *uuid.UUID
	SortBy     string
	Order      string
	Page       int
	PageSize   int
}

type TaskStats struct {
	Total          int64            `json:"total"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByPriority     map[string]int64 `json:"by_priority"`
	ByAssignee     map[string]int64 `json:"by_assignee"`
	Overdue        int64            `json:"overdue"`
	CompletionRate float64          `json:"completion_rate"`
}

type TaskService interface {
	CreateTask(db *gorm.DB, caller Caller, input CreateTaskInput) (*models.Task, error)
	GetTask(db *gorm.DB, caller Caller, id uuid.UUID) (*models.Task, error)
	ListTasks(db *gorm.DB, caller Caller, filter TaskFilter) ([]models.Task, int64, error)
	UpdateTask(db *gorm.DB, caller Caller, id uuid.UUID, patch TaskPatch) (*models.Task, TaskChanges, error)
	DeleteTask(db *gorm.DB, caller Caller, id uuid.UUID) error
	Stats(db *gorm.DB, caller Caller) (*TaskStats, error)
	Kanban(db *gorm.DB, caller Caller) (map[string][]models.Task, error)
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, caller Caller, input CreateTaskInput) (*models.Task, error) {
	if input.Title == "" {
		return nil, ErrValidation
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPriority(priority) {
		return nil, ErrValidation
	}

	status := input.Status
	if status == "" {
		status = models.StatusPending
	}
	if !models.ValidStatus(status) {
		return nil, ErrValidation
	}

	task := models.Task{
		ID:               uuid.Must(uuid.NewV4()),
		Title:            input.Title,
		Description:      input.Description,
		Priority:         priority,
		Status:           status,
		CreatedBy:        caller.ID,
		PerformanceDelta: input.PerformanceDelta,
		DueDate:          input.DueDate,
		AIGenerated:      input.AIGenerated,
		AIContext:        input.AIContext,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if input.Assignee != "" {
			assignee, err := resolveAssignee(tx, input.Assignee)
			if err != nil {
				return err
			}
			task.AssigneeID = &assignee.ID
			if err := adjustAssignedCount(tx, assignee.ID, +1); err != nil {
				return err
			}
		}

		if task.Status == models.StatusCompleted {
			now := time.Now()
			task.CompletedAt = &now
			if task.AssigneeID != nil {
				if err := applyCompletion(tx, *task.AssigneeID, task.PerformanceDelta, +1); err != nil {
					return err
				}
				task.CompletedBy = task.AssigneeID
			}
		}

		return tx.Create(&task).Error
	})
	if err != nil {
		return nil, err
	}

	return &task, nil
}

func (s *TaskServiceImpl) GetTask(db *gorm.DB, caller Caller, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !canAccess(caller, &task) {
		return nil, ErrForbidden
	}
	return &task, nil
}

func (s *TaskServiceImpl) ListTasks(db *gorm.DB, caller Caller, filter TaskFilter) ([]models.Task, int64, error) {
	query := scopedTasks(db, caller)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *filter.AssigneeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	switch sortBy {
	case "created_at", "updated_at", "due_date", "priority", "status", "title":
	default:
		sortBy = "created_at"
	}
	order := "desc"
	if filter.Order == "asc" {
		order = "asc"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var tasks []models.Task
	err := query.Order(sortBy + " " + order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, caller Caller, id uuid.UUID, patch TaskPatch) (*models.Task, TaskChanges, error) {
	var task models.Task
	var changes TaskChanges

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !canAccess(caller, &task) {
			return ErrForbidden
		}

		if patch.Title != nil {
			if *patch.Title == "" {
				return ErrValidation
			}
			task.Title = *patch.Title
		}
		if patch.Description != nil {
			task.Description = *patch.Description
		}
		if patch.Priority != nil {
			if !models.ValidPriority(*patch.Priority) {
				return ErrValidation
			}
			task.Priority = *patch.Priority
		}
		if patch.PerformanceDelta != nil {
			// The delta of an already-completed task is frozen; changing it
			// would desynchronize the score it already contributed to.
			if task.IsCompleted() {
				return ErrValidation
			}
			task.PerformanceDelta = *patch.PerformanceDelta
		}
		if patch.DueDate != nil {
			task.DueDate = patch.DueDate
		} else if patch.ClearDueDate {
			task.DueDate = nil
		}

		// Assignment first, so a completion in the same patch credits the
		// new assignee.
		if patch.Assignee != nil {
			if err := s.reassign(tx, &task, *patch.Assignee, &changes); err != nil {
				return err
			}
		}

		if patch.Status != nil {
			if !models.ValidStatus(*patch.Status) {
				return ErrValidation
			}
			if err := s.transitionStatus(tx, &task, *patch.Status, &changes); err != nil {
				return err
			}
		}

		return tx.Save(&task).Error
	})
	if err != nil {
		return nil, TaskChanges{}, err
	}

	return &task, changes, nil
}

func (s *TaskServiceImpl) reassign(tx *gorm.DB, task *models.Task, assigneeRef string, changes *TaskChanges) error {
	var newAssigneeID *uuid.UUID
	if assigneeRef != "" {
		assignee, err := resolveAssignee(tx, assigneeRef)
		if err != nil {
			return err
		}
		newAssigneeID = &assignee.ID
	}

	oldID := task.AssigneeID
	if equalAssignee(oldID, newAssigneeID) {
		return nil
	}

	if oldID != nil {
		if err := adjustAssignedCount(tx, *oldID, -1); err != nil {
			return err
		}
		// A completed task's delta stays with whoever completed it; moving
		// the task does not move already-applied score.
	}
	if newAssigneeID != nil {
		if err := adjustAssignedCount(tx, *newAssigneeID, +1); err != nil {
			return err
		}
	}

	task.AssigneeID = newAssigneeID
	changes.Reassigned = true
	return nil
}

// transitionStatus moves the task between statuses and applies (or reverses)
// the performance delta on the completion boundary. Writing the same status
// again is a no-op, which is what makes the completion delta idempotent.
func (s *TaskServiceImpl) transitionStatus(tx *gorm.DB, task *models.Task, newStatus string, changes *TaskChanges) error {
	oldStatus := task.Status
	if newStatus == oldStatus {
		return nil
	}

	switch {
	case newStatus == models.StatusCompleted:
		now := time.Now()
		task.CompletedAt = &now
		if task.AssigneeID != nil {
			if err := applyCompletion(tx, *task.AssigneeID, task.PerformanceDelta, +1); err != nil {
				return err
			}
			task.CompletedBy = task.AssigneeID
		}
	case oldStatus == models.StatusCompleted:
		task.CompletedAt = nil
		// Reverse against whoever was credited, which may differ from the
		// current assignee if the task moved while completed.
		if task.CompletedBy != nil {
			if err := applyCompletion(tx, *task.CompletedBy, -task.PerformanceDelta, -1); err != nil {
				return err
			}
			task.CompletedBy = nil
		}
	}

	task.Status = newStatus
	changes.StatusChanged = true
	changes.OldStatus = oldStatus
	return nil
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, caller Caller, id uuid.UUID) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Deletion is narrower than editing: only admins and the creator.
		if !caller.IsAdmin() && task.CreatedBy != caller.ID {
			return ErrForbidden
		}

		if task.AssigneeID != nil {
			if err := adjustAssignedCount(tx, *task.AssigneeID, -1); err != nil {
				return err
			}
		}
		if task.IsCompleted() && task.CompletedBy != nil {
			if err := applyCompletion(tx, *task.CompletedBy, -task.PerformanceDelta, -1); err != nil {
				return err
			}
		}

		return tx.Delete(&task).Error
	})
}

func (s *TaskServiceImpl) Stats(db *gorm.DB, caller Caller) (*TaskStats, error) {
	stats := &TaskStats{
		ByStatus:   make(map[string]int64),
		ByPriority: make(map[string]int64),
		ByAssignee: make(map[string]int64),
	}

	base := scopedTasks(db, caller)

	if err := base.Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var statusBuckets []bucket
	if err := scopedTasks(db, caller).
		Select("status as key, count(*) as count").
		Group("status").
		Scan(&statusBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range statusBuckets {
		stats.ByStatus[b.Key] = b.Count
	}

	var priorityBuckets []bucket
	if err := scopedTasks(db, caller).
		Select("priority as key, count(*) as count").
		Group("priority").
		Scan(&priorityBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range priorityBuckets {
		stats.ByPriority[b.Key] = b.Count
	}

	var assigneeBuckets []bucket
	if err := scopedTasks(db, caller).
		Joins("JOIN users ON users.id = tasks.assignee_id").
		Select("users.username as key, count(*) as count").
		Group("users.username").
		Scan(&assigneeBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range assigneeBuckets {
		stats.ByAssignee[b.Key] = b.Count
	}

	if err := scopedTasks(db, caller).
		Where("due_date IS NOT NULL AND due_date < ? AND status != ?", time.Now(), models.StatusCompleted).
		Count(&stats.Overdue).Error; err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.ByStatus[models.StatusCompleted]) / float64(stats.Total) * 100
	}

	return stats, nil
}

func (s *TaskServiceImpl) Kanban(db *gorm.DB, caller Caller) (map[string][]models.Task, error) {
	board := map[string][]models.Task{
		models.StatusPending:    {},
		models.StatusInProgress: {},
		models.StatusCompleted:  {},
	}

	var tasks []models.Task
	if err := scopedTasks(db, caller).Order("created_at desc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	for _, task := range tasks {
		board[task.Status] = append(board[task.Status], task)
	}
	return board, nil
}

// scopedTasks restricts queries to what the caller may see: admins see all,
// members see tasks they are assigned to or created.
func scopedTasks(db *gorm.DB, caller Caller) *gorm.DB {
	query := db.Model(&models.Task{})
	if !caller.IsAdmin() {
		query = query.Where("assignee_id = ? OR created_by = ?", caller.ID, caller.ID)
	}
	return query
}

func canAccess(caller Caller, task *models.Task) bool {
	if caller.IsAdmin() {
		return true
	}
	if task.AssigneeID != nil && *task.AssigneeID == caller.ID {
		return true
	}
	return task.CreatedBy == caller.ID
}

// resolveAssignee accepts either a user id or a username and requires the
// user to exist.
func resolveAssignee(tx *gorm.DB, ref string) (*models.User, error) {
	var user models.User
	if id, err := uuid.FromString(ref); err == nil {
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrValidation
			}
			return nil, err
		}
		return &user, nil
	}

	if err := tx.Where("username = ?", ref).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrValidation
		}
		return nil, err
	}
	return &user, nil
}

func adjustAssignedCount(tx *gorm.DB, userID uuid.UUID, delta int) error {
	// CASE keeps the counter floor portable across sqlite and postgres.
	return tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("tasks_assigned",
			gorm.Expr("CASE WHEN tasks_assigned + ? < 0 THEN 0 ELSE tasks_assigned + ? END", delta, delta)).Error
}

func applyCompletion(tx *gorm.DB, userID uuid.UUID, scoreDelta float64, completedDelta int) error {
	return tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"performance_score": gorm.Expr("performance_score + ?", scoreDelta),
			"tasks_completed":   gorm.Expr("CASE WHEN tasks_completed + ? < 0 THEN 0 ELSE tasks_completed + ? END", completedDelta, completedDelta),
		}).Error
}

func equalAssignee(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
