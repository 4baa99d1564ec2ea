package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps user input to a priority, defaulting to medium.
func ParsePriority(raw string) (Priority, bool) {
	switch Priority(raw) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(raw), true
	case "":
		return PriorityMedium, true
	default:
		return PriorityMedium, false
	}
}

// Task is a single to-do item. Tasks generated from a recurring definition
// carry RecurringTaskID pointing back to it.
type Task struct {
	ID              string     `gorm:"primaryKey;size:36"`
	UserID          uint       `gorm:"index;not null"`
	Title           string     `gorm:"not null"`
	Description     *string
	Status          TaskStatus `gorm:"size:20;default:pending"`
	Priority        Priority   `gorm:"size:10;default:medium"`
	CategoryID      *uint      `gorm:"index"`
	RecurringTaskID *string    `gorm:"size:36;uniqueIndex:idx_task_recurrence_due"`
	Tags            []string   `gorm:"serializer:json"`
	DueDate         *time.Time `gorm:"column:due_date;uniqueIndex:idx_task_recurrence_due"`
	ReminderTime    *time.Time `gorm:"column:reminder_time;index"`
	IsCompleted     bool       `gorm:"default:false"`
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

// ShortID is the prefix shown in chat and accepted by commands.
func (t Task) ShortID() string {
	if len(t.ID) < 8 {
		return t.ID
	}
	return t.ID[:8]
}

// CompletionFields returns the column updates that switch a task to done or
// back, keeping is_completed, status and completed_at in lock-step.
func CompletionFields(done bool, at time.Time) map[string]interface{} {
	if done {
		return map[string]interface{}{
			"is_completed": true,
			"status":       StatusCompleted,
			"completed_at": at,
		}
	}
	return map[string]interface{}{
		"is_completed": false,
		"status":       StatusPending,
		"completed_at": nil,
	}
}

// SetCompleted applies CompletionFields to an in-memory copy.
func (t *Task) SetCompleted(done bool, at time.Time) {
	t.IsCompleted = done
	if done {
		t.Status = StatusCompleted
		t.CompletedAt = &at
		return
	}
	t.Status = StatusPending
	t.CompletedAt = nil
}
