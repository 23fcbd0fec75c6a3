package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/schoolstock-backend/pkg/enums"
)

// InventoryTransaction is an immutable ledger entry for stock movement.
// After creation only status, actual_return_date, and notes may change, and
// only through the return/cancel paths.
type InventoryTransaction struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ItemID             uuid.UUID               `gorm:"column:item_id;type:uuid;not null"`
	Type               enums.TransactionType   `gorm:"column:type;not null"`
	Quantity           int                     `gorm:"column:quantity;not null"`
	Status             enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	IssueDate          time.Time               `gorm:"column:issue_date;not null"`
	ExpectedReturnDate *time.Time              `gorm:"column:expected_return_date"`
	ActualReturnDate   *time.Time              `gorm:"column:actual_return_date"`
	RecipientName      string                  `gorm:"column:recipient_name;not null;default:''"`
	RecipientContact   *string                 `gorm:"column:recipient_contact"`
	Purpose            *string                 `gorm:"column:purpose"`
	Notes              *string                 `gorm:"column:notes"`
	IssuedBy           uuid.UUID               `gorm:"column:issued_by;type:uuid;not null"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Item *InventoryItem `gorm:"foreignKey:ItemID"`
}

// IsOverdue derives the overdue state at read time. The stored status stays
// pending; overdue is never written back.
func (t InventoryTransaction) IsOverdue(now time.Time) bool {
	return t.Status == enums.TransactionStatusPending &&
		t.ExpectedReturnDate != nil &&
		t.ExpectedReturnDate.Before(now)
}
