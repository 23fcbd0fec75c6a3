package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/pagination"
)

// ListFilters narrows the transaction listing. OverdueAsOf, when set, keeps
// only pending entries whose expected return date has passed; overdue is
// computed here at read time and never stored.
type ListFilters struct {
	ItemID      *uuid.UUID
	Type        *enums.TransactionType
	Status      *enums.TransactionStatus
	IssuedBy    *uuid.UUID
	OverdueAsOf *time.Time
}

// ListQuery combines filters with cursor pagination inputs.
type ListQuery struct {
	Pagination pagination.Params
	Filters    ListFilters
}

// ListResult is one page of ledger entries plus the next-page cursor.
type ListResult struct {
	Transactions []models.InventoryTransaction
	NextCursor   string
}

// Repository manages persistence for the transaction ledger. Entries are
// immutable after creation except for the guarded status transitions below.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.InventoryTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryTransaction, error)
	MarkReturned(ctx context.Context, id uuid.UUID, returnedAt time.Time, notes *string) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	CountPendingOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryTransaction, error) {
	var entry models.InventoryTransaction
	err := r.db.WithContext(ctx).
		Preload("Item").
		First(&entry, "id = ?", id).
		Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkReturned flips a pending entry to returned. The status guard in the
// WHERE clause makes a second return of the same entry a no-op, reported as
// false so the caller can answer idempotently.
func (r *repository) MarkReturned(ctx context.Context, id uuid.UUID, returnedAt time.Time, notes *string) (bool, error) {
	updates := map[string]any{
		"status":             enums.TransactionStatusReturned,
		"actual_return_date": returnedAt,
	}
	if notes != nil {
		updates["notes"] = *notes
	}

	res := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Cancel voids a pending entry. Used to compensate a ledger write whose item
// update was refused.
func (r *repository) Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	updates := map[string]any{
		"status": enums.TransactionStatusCancelled,
	}
	if reason != "" {
		updates["notes"] = reason
	}

	res := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	pageSize := pagination.NormalizeLimit(query.Pagination.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(query.Pagination.Limit)

	cursor, err := pagination.ParseCursor(query.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	qb := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Preload("Item")

	filter := query.Filters
	if filter.ItemID != nil {
		qb = qb.Where("item_id = ?", *filter.ItemID)
	}
	if filter.Type != nil {
		qb = qb.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		qb = qb.Where("status = ?", *filter.Status)
	}
	if filter.IssuedBy != nil {
		qb = qb.Where("issued_by = ?", *filter.IssuedBy)
	}
	if filter.OverdueAsOf != nil {
		qb = qb.Where("status = ? AND expected_return_date IS NOT NULL AND expected_return_date < ?",
			enums.TransactionStatusPending, *filter.OverdueAsOf)
	}

	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.InventoryTransaction
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
		Transactions: rows,
		NextCursor:   nextCursor,
	}, nil
}

func (r *repository) CountPendingOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Where("status = ? AND expected_return_date IS NOT NULL AND expected_return_date < ?",
			enums.TransactionStatusPending, asOf).
		Count(&count).
		Error
	return count, err
}
