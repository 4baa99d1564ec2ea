package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"todo-planner/internal/model"
)

const defaultCategoryColor = "#6b7280"

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetOrCreate returns the user's category with the given name, creating it
// when missing. An empty name yields nil.
func (r *CategoryRepository) GetOrCreate(ctx context.Context, userID uint, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var category model.Category
	err := r.db.WithContext(ctx).
		Where(model.Category{UserID: userID, Name: name}).
		Attrs(model.Category{Color: defaultCategoryColor}).
		FirstOrCreate(&category).Error
	if err != nil {
		return nil, fmt.Errorf("get or create category: %w", err)
	}
	return &category, nil
}

func (r *CategoryRepository) ListByUser(ctx context.Context, userID uint) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}
