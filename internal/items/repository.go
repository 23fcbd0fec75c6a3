package items

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/pagination"
)

// ListFilters narrows the item listing.
type ListFilters struct {
	CategoryID   *uuid.UUID
	AreaID       *uuid.UUID
	Status       *enums.ItemStatus
	Condition    *enums.ItemCondition
	LowStockOnly bool
	Query        string
}

// ListQuery combines filters with cursor pagination inputs.
type ListQuery struct {
	Pagination pagination.Params
	Filters    ListFilters
}

// ListResult is one page of items plus the cursor for the next page.
type ListResult struct {
	Items      []models.InventoryItem
	NextCursor string
}

// Repository defines persistence for inventory items. Quantity writes go
// through ConditionalDecrement/Increment so the stored quantity can never go
// negative, no matter how many writers race; metadata edits go through
// UpdateColumns, which cannot name the quantity column and therefore cannot
// overwrite a concurrent stock movement with a stale snapshot.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.InventoryItem) error
	UpdateColumns(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	SyncTrackedStatus(ctx context.Context, id uuid.UUID) (bool, error)
	Retire(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	HasTransactions(ctx context.Context, itemID uuid.UUID) (bool, error)
	ConditionalDecrement(ctx context.Context, id uuid.UUID, amount int) (bool, error)
	Increment(ctx context.Context, id uuid.UUID, amount int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an item repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// UpdateColumns writes only the named metadata columns. Quantity never moves
// through here; it belongs to the guarded statements below.
func (r *repository) UpdateColumns(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SyncTrackedStatus recomputes the status from the live quantity in a single
// statement: zero on hand reads checked_out, anything else available. Retired
// rows are left alone.
func (r *repository) SyncTrackedStatus(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND status <> ?", id, enums.ItemStatusRetired).
		Update("status", gorm.Expr(
			"CASE WHEN quantity = 0 THEN ? ELSE ? END",
			enums.ItemStatusCheckedOut, enums.ItemStatusAvailable,
		))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Retire flips the status in one guarded statement so a racing stock movement
// can never be overwritten by a stale row snapshot. Reports false when the
// row is missing or already retired.
func (r *repository) Retire(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND status <> ?", id, enums.ItemStatusRetired).
		Update("status", enums.ItemStatusRetired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.InventoryItem{}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Area").
		First(&item, "id = ?", id).
		Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	pageSize := pagination.NormalizeLimit(query.Pagination.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(query.Pagination.Limit)

	cursor, err := pagination.ParseCursor(query.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	qb := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Preload("Category").
		Preload("Area")

	filter := query.Filters
	if filter.CategoryID != nil {
		qb = qb.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.AreaID != nil {
		qb = qb.Where("area_id = ?", *filter.AreaID)
	}
	if filter.Status != nil {
		qb = qb.Where("status = ?", *filter.Status)
	}
	if filter.Condition != nil {
		qb = qb.Where("condition = ?", *filter.Condition)
	}
	if filter.LowStockOnly {
		qb = qb.Where("quantity <= min_stock_level")
	}
	if search := strings.TrimSpace(filter.Query); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(name) LIKE ? OR LOWER(sku) LIKE ?)", pattern, pattern)
	}

	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.InventoryItem
	if err := qb.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer).Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &ListResult{
		Items:      rows,
		NextCursor: nextCursor,
	}, nil
}

func (r *repository) HasTransactions(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Where("item_id = ?", itemID).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConditionalDecrement subtracts amount from the item's quantity in a single
// guarded UPDATE. It reports false without error when the guard fails, which
// covers insufficient stock, a retired item, and a missing row alike; callers
// re-read the item to tell those apart. When the decrement lands on zero the
// same statement flips an available item to checked_out, so quantity and
// status never disagree even transiently.
func (r *repository) ConditionalDecrement(ctx context.Context, id uuid.UUID, amount int) (bool, error) {
	if amount <= 0 {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "decrement amount must be positive, got %d", amount)
	}

	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND quantity >= ? AND status <> ?", id, amount, enums.ItemStatusRetired).
		Updates(map[string]any{
			"quantity": gorm.Expr("quantity - ?", amount),
			"status": gorm.Expr(
				"CASE WHEN quantity - ? = 0 AND status = ? THEN ? ELSE status END",
				amount, enums.ItemStatusAvailable, enums.ItemStatusCheckedOut,
			),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Increment adds amount back to the item's quantity and reverts checked_out
// to available in the same statement. Retired items stay untouched.
func (r *repository) Increment(ctx context.Context, id uuid.UUID, amount int) (bool, error) {
	if amount <= 0 {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "increment amount must be positive, got %d", amount)
	}

	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND status <> ?", id, enums.ItemStatusRetired).
		Updates(map[string]any{
			"quantity": gorm.Expr("quantity + ?", amount),
			"status": gorm.Expr(
				"CASE WHEN status = ? THEN ? ELSE status END",
				enums.ItemStatusCheckedOut, enums.ItemStatusAvailable,
			),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
