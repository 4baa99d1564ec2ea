package recurrence

import (
	"context"
	"errors"
	"time"

	"todo-planner/internal/model"
)

var (
	ErrTemplateNotFound   = errors.New("template task not found")
	ErrDefinitionNotFound = errors.New("recurring task not found")
	// ErrDuplicateInstance is returned by a TaskStore that enforces the
	// (recurring_task_id, due_date) uniqueness itself.
	ErrDuplicateInstance = errors.New("instance already exists for due date")
)

// TaskStore persists tasks.
type TaskStore interface {
	ListTasksForOwner(ctx context.Context, ownerID uint) ([]model.Task, error)
	InsertTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteTask(ctx context.Context, id string) error
}

// DefinitionStore persists recurring task definitions.
type DefinitionStore interface {
	ListDefinitionsForOwner(ctx context.Context, ownerID uint) ([]model.RecurringTask, error)
	FindDefinition(ctx context.Context, id string) (*model.RecurringTask, error)
	InsertDefinition(ctx context.Context, def *model.RecurringTask) error
	UpdateDefinition(ctx context.Context, id string, fields map[string]interface{}) error
}

// Collection is the in-memory task list of one owner.
type Collection interface {
	Find(id string) (model.Task, bool)
	HasInstance(definitionID string, due time.Time) bool
	Add(task model.Task)
}

// InstanceSink receives every materialized instance, e.g. to announce its
// reminder.
type InstanceSink interface {
	InstanceCreated(ctx context.Context, task model.Task)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SameInstant compares due dates at millisecond precision.
func SameInstant(a, b time.Time) bool {
	return a.UnixMilli() == b.UnixMilli()
}
