package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskRepository handles CRUD for tasks and implements recurrence.TaskStore.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

var _ recurrence.TaskStore = (*TaskRepository)(nil)

// ListTasksForOwner returns the owner's tasks, newest first.
func (r *TaskRepository) ListTasksForOwner(ctx context.Context, ownerID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) InsertTask(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create task: %w", recurrence.ErrDuplicateInstance)
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// UpdateTask writes the given columns. A []string under "tags" is encoded
// the same way the model serializer does.
func (r *TaskRepository) UpdateTask(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if tags, ok := fields["tags"].([]string); ok {
		raw, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		fields["tags"] = string(raw)
	}
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, ownerID uint, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", ownerID, id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// ListPendingReminders returns open tasks whose reminder falls in [from, to].
func (r *TaskRepository) ListPendingReminders(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("is_completed = ? AND reminder_time IS NOT NULL AND reminder_time >= ? AND reminder_time <= ?", false, from.UTC(), to.UTC()).
		Order("reminder_time ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return tasks, nil
}
