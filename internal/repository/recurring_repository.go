package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
)

// RecurringRepository stores recurring task definitions.
type RecurringRepository struct {
	db *gorm.DB
}

func NewRecurringRepository(db *gorm.DB) *RecurringRepository {
	return &RecurringRepository{db: db}
}

var _ recurrence.DefinitionStore = (*RecurringRepository)(nil)

func (r *RecurringRepository) ListDefinitionsForOwner(ctx context.Context, ownerID uint) ([]model.RecurringTask, error) {
	var defs []model.RecurringTask
	if err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("created_at ASC").
		Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("list recurring tasks: %w", err)
	}
	return defs, nil
}

func (r *RecurringRepository) FindDefinition(ctx context.Context, id string) (*model.RecurringTask, error) {
	var def model.RecurringTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, recurrence.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recurring task: %w", err)
	}
	return &def, nil
}

func (r *RecurringRepository) InsertDefinition(ctx context.Context, def *model.RecurringTask) error {
	if err := r.db.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("create recurring task: %w", err)
	}
	return nil
}

func (r *RecurringRepository) UpdateDefinition(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.RecurringTask{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update recurring task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return recurrence.ErrDefinitionNotFound
	}
	return nil
}

// CreateWithTemplate inserts the template task and its definition in one
// transaction and links the task back to the definition.
func (r *RecurringRepository) CreateWithTemplate(ctx context.Context, task *model.Task, def *model.RecurringTask) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create template: %w", err)
		}
		def.UserID = task.UserID
		def.TemplateID = task.ID
		if err := tx.Create(def).Error; err != nil {
			return fmt.Errorf("create recurring task: %w", err)
		}
		if err := tx.Model(task).Update("recurring_task_id", def.ID).Error; err != nil {
			return fmt.Errorf("link template: %w", err)
		}
		task.RecurringTaskID = &def.ID
		return nil
	})
}
