package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
)

// TaskRepository persists the operator queue for item writes that could not
// be applied after the inline repair retries.
type TaskRepository interface {
	WithTx(tx *gorm.DB) TaskRepository
	Create(ctx context.Context, task *models.ReconciliationTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationTask, error)
	ListUnresolved(ctx context.Context, limit int) ([]models.ReconciliationTask, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, lastError string) error
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository builds a reconciliation task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) WithTx(tx *gorm.DB) TaskRepository {
	if tx == nil {
		return r
	}
	return &taskRepository{db: tx}
}

func (r *taskRepository) Create(ctx context.Context, task *models.ReconciliationTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationTask, error) {
	var task models.ReconciliationTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListUnresolved(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	if limit <= 0 {
		limit = 50
	}
	var tasks []models.ReconciliationTask
	err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).
		Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReconciliationTask{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *taskRepository) RecordAttempt(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).
		Error
}
