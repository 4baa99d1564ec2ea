package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/model"
)

// Materializer creates instance tasks, at most one per definition and due
// date.
type Materializer struct {
	tasks    TaskStore
	sink     InstanceSink
	location *time.Location
	logger   *zap.Logger
}

func NewMaterializer(tasks TaskStore, sink InstanceSink, loc *time.Location, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Materializer{tasks: tasks, sink: sink, location: loc, logger: logger}
}

// Materialize inserts the instance for due unless coll already has one.
// The boolean reports whether a new task was created.
func (m *Materializer) Materialize(ctx context.Context, template model.Task, def model.RecurringTask, due time.Time, coll Collection) (*model.Task, bool, error) {
	if coll.HasInstance(def.ID, due) {
		m.logger.Debug("instance already present",
			zap.String("recurring_task_id", def.ID), zap.Time("due_date", due))
		return nil, false, nil
	}

	instance := BuildInstance(template, def, due.In(m.location))
	if err := m.tasks.InsertTask(ctx, &instance); err != nil {
		if errors.Is(err, ErrDuplicateInstance) {
			m.logger.Info("instance rejected by store as duplicate",
				zap.String("recurring_task_id", def.ID), zap.Time("due_date", due))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert instance: %w", err)
	}

	coll.Add(instance)
	m.logger.Info("instance created",
		zap.String("task_id", instance.ID),
		zap.String("recurring_task_id", def.ID),
		zap.Time("due_date", due))
	if m.sink != nil {
		m.sink.InstanceCreated(ctx, instance)
	}
	return &instance, true, nil
}

// BuildInstance copies the template's content into a fresh pending task due
// at due. Timestamps are stored in UTC.
func BuildInstance(template model.Task, def model.RecurringTask, due time.Time) model.Task {
	dueUTC := due.UTC()
	instance := model.Task{
		UserID:          template.UserID,
		Title:           template.Title,
		Description:     template.Description,
		Status:          model.StatusPending,
		Priority:        template.Priority,
		CategoryID:      template.CategoryID,
		RecurringTaskID: &def.ID,
		Tags:            append([]string(nil), template.Tags...),
		DueDate:         &dueUTC,
		IsCompleted:     false,
	}
	if reminder := ApplyReminderTime(due, def.ReminderClock()); reminder != nil {
		r := reminder.UTC()
		instance.ReminderTime = &r
	}
	return instance
}
