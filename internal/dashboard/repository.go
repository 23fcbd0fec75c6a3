package dashboard

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
)

// Repository computes the read-only aggregates behind the dashboard.
// Every figure is derived on demand; nothing here writes.
type Repository interface {
	CountItemsByStatus(ctx context.Context) (map[enums.ItemStatus]int64, error)
	CountLowStock(ctx context.Context) (int64, error)
	CountPendingByType(ctx context.Context, txType enums.TransactionType) (int64, error)
	SumStockValue(ctx context.Context) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a dashboard repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type statusCount struct {
	Status enums.ItemStatus
	Count  int64
}

func (r *repository) CountItemsByStatus(ctx context.Context) (map[enums.ItemStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}

	counts := make(map[enums.ItemStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *repository) CountLowStock(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("quantity <= min_stock_level").
		Where("status <> ?", enums.ItemStatusRetired).
		Count(&count).
		Error
	return count, err
}

func (r *repository) CountPendingByType(ctx context.Context, txType enums.TransactionType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Where("type = ? AND status = ?", txType, enums.TransactionStatusPending).
		Count(&count).
		Error
	return count, err
}

func (r *repository) SumStockValue(ctx context.Context) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("status <> ?", enums.ItemStatusRetired).
		Select("SUM(quantity * unit_price)").
		Scan(&raw).
		Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}
