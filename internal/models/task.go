package models

import (
	"time"

	"github.com/gofrs/uuid"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type Task struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description"`
	Status      string    `json:"status" gorm:"not null;default:'pending'"`
	Priority    string    `json:"priority" gorm:"not null;default:'medium'"`

	AssigneeID *uuid.UUID `json:"assignee_id" gorm:"type:uuid;index"`
	CreatedBy  uuid.UUID  `json:"created_by" gorm:"type:uuid;not null;index"`

	// Added to the assignee's PerformanceScore when the task completes.
	PerformanceDelta float64 `json:"performance_delta" gorm:"default:0"`

	DueDate     *time.Time `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at"`

	// Who the delta was credited to. Reassigning a completed task does not
	// move the credit, so reversals must target this user, not the assignee.
	CompletedBy *uuid.UUID `json:"completed_by,omitempty" gorm:"type:uuid"`

	AIGenerated bool   `json:"ai_generated" gorm:"default:false"`
	AIContext   string `json:"ai_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.IsCompleted() {
		return false
	}
	return now.After(*t.DueDate)
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
