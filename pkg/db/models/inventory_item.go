package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuskit/schoolstock-backend/pkg/enums"
)

// InventoryItem is the authoritative on-hand record for one stocked item.
// Quantity and status are only ever mutated through the stock engine so the
// transaction ledger stays reconciled with them.
type InventoryItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name          string              `gorm:"column:name;not null"`
	Description   *string             `gorm:"column:description"`
	SKU           string              `gorm:"column:sku;not null"`
	SerialNumber  *string             `gorm:"column:serial_number"`
	Manufacturer  *string             `gorm:"column:manufacturer"`
	Location      *string             `gorm:"column:location"`
	CategoryID    *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	AreaID        *uuid.UUID          `gorm:"column:area_id;type:uuid"`
	Quantity      int                 `gorm:"column:quantity;not null;default:0"`
	MinStockLevel int                 `gorm:"column:min_stock_level;not null;default:0"`
	UnitPrice     decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null;default:0"`
	Status        enums.ItemStatus    `gorm:"column:status;not null;default:'available'"`
	Condition     enums.ItemCondition `gorm:"column:condition;not null;default:'good'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Category *Category `gorm:"foreignKey:CategoryID"`
	Area     *Area     `gorm:"foreignKey:AreaID"`
}

// IsLowStock derives the low-stock flag. It is never stored.
func (i InventoryItem) IsLowStock() bool {
	return i.Quantity <= i.MinStockLevel
}
