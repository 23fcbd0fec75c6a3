package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
)

// Repository persists the category and area reference data items hang off.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCategory(ctx context.Context, category *models.Category) error
	SaveCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	FindCategoryByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CountItemsInCategory(ctx context.Context, id uuid.UUID) (int64, error)

	CreateArea(ctx context.Context, area *models.Area) error
	SaveArea(ctx context.Context, area *models.Area) error
	DeleteArea(ctx context.Context, id uuid.UUID) error
	FindAreaByID(ctx context.Context, id uuid.UUID) (*models.Area, error)
	ListAreas(ctx context.Context) ([]models.Area, error)
	CountItemsInArea(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *repository) SaveCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

func (r *repository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Category{}).Error
}

func (r *repository) FindCategoryByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error
	return categories, err
}

func (r *repository) CountItemsInCategory(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("category_id = ?", id).
		Count(&count).
		Error
	return count, err
}

func (r *repository) CreateArea(ctx context.Context, area *models.Area) error {
	return r.db.WithContext(ctx).Create(area).Error
}

func (r *repository) SaveArea(ctx context.Context, area *models.Area) error {
	return r.db.WithContext(ctx).Save(area).Error
}

func (r *repository) DeleteArea(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Area{}).Error
}

func (r *repository) FindAreaByID(ctx context.Context, id uuid.UUID) (*models.Area, error) {
	var area models.Area
	if err := r.db.WithContext(ctx).First(&area, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &area, nil
}

func (r *repository) ListAreas(ctx context.Context) ([]models.Area, error) {
	var areas []models.Area
	err := r.db.WithContext(ctx).Order("name ASC").Find(&areas).Error
	return areas, err
}

func (r *repository) CountItemsInArea(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("area_id = ?", id).
		Count(&count).
		Error
	return count, err
}
