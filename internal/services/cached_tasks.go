package services

import (
	"fmt"
	"time"

	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// CachedTaskService decorates a TaskService with a multi-level cache. Task
// rows are cached unscoped and the ownership check re-runs on every hit, so
// a cached row never leaks across callers. List and stat results are keyed
// by caller scope.
type CachedTaskService struct {
	taskService TaskService
	cache       *cache.MultiLevelCache
}

func NewCachedTaskService(taskService TaskService, cacheInstance *cache.MultiLevelCache) *CachedTaskService {
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
	}
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, caller Caller, input CreateTaskInput) (*models.Task, error) {
	task, err := s.taskService.CreateTask(db, caller, input)
	if err != nil {
		return nil, err
	}

	s.cache.Set(taskKey(task.ID), task, 30*time.Minute)
	s.invalidateDerived()

	return task, nil
}

func (s *CachedTaskService) GetTask(db *gorm.DB, caller Caller, id uuid.UUID) (*models.Task, error) {
	var cached models.Task
	if err := s.cache.Get(taskKey(id), &cached); err == nil {
		if !canAccess(caller, &cached) {
			return nil, ErrForbidden
		}
		return &cached, nil
	}

	task, err := s.taskService.GetTask(db, caller, id)
	if err != nil {
		return nil, err
	}

	s.cache.Set(taskKey(id), task, 30*time.Minute)
	return task, nil
}

func (s *CachedTaskService) ListTasks(db *gorm.DB, caller Caller, filter TaskFilter) ([]models.Task, int64, error) {
	key := listKey(caller, filter)

	var cached struct {
		Tasks []models.Task `json:"tasks"`
		Total int64         `json:"total"`
	}
	if err := s.cache.Get(key, &cached); err == nil {
		return cached.Tasks, cached.Total, nil
	}

	tasks, total, err := s.taskService.ListTasks(db, caller, filter)
	if err != nil {
		return nil, 0, err
	}

	cached.Tasks = tasks
	cached.Total = total
	s.cache.Set(key, cached, 5*time.Minute)

	return tasks, total, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, caller Caller, id uuid.UUID, patch TaskPatch) (*models.Task, TaskChanges, error) {
	task, changes, err := s.taskService.UpdateTask(db, caller, id, patch)
	if err != nil {
		return nil, changes, err
	}

	s.cache.Set(taskKey(id), task, 30*time.Minute)
	s.invalidateDerived()

	return task, changes, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, caller Caller, id uuid.UUID) error {
	if err := s.taskService.DeleteTask(db, caller, id); err != nil {
		return err
	}

	s.cache.Delete(taskKey(id))
	s.invalidateDerived()

	return nil
}

func (s *CachedTaskService) Stats(db *gorm.DB, caller Caller) (*TaskStats, error) {
	key := fmt.Sprintf("task_stats:%s", scopeKey(caller))

	var cached TaskStats
	if err := s.cache.Get(key, &cached); err == nil {
		return &cached, nil
	}

	stats, err := s.taskService.Stats(db, caller)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, stats, 1*time.Minute)
	return stats, nil
}

func (s *CachedTaskService) Kanban(db *gorm.DB, caller Caller) (map[string][]models.Task, error) {
	// Kanban reads the full scoped set; the list cache does not help here.
	return s.taskService.Kanban(db, caller)
}

func (s *CachedTaskService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}

func (s *CachedTaskService) invalidateDerived() {
	s.cache.DeletePattern("task_list:*")
	s.cache.DeletePattern("task_stats:*")
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id.String())
}

func listKey(caller Caller, f TaskFilter) string {
	assignee := ""
	if f.AssigneeID != nil {
		assignee = f.AssigneeID.String()
	}
	return fmt.Sprintf("task_list:%s:%s:%s:%s:%s:%s:%d:%d",
		scopeKey(caller), f.Status, f.Priority, assignee, f.SortBy, f.Order, f.Page, f.PageSize)
}

func scopeKey(caller Caller) string {
	if caller.IsAdmin() {
		return "all"
	}
	return caller.ID.String()
}
