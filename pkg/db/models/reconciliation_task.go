package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReconciliationDirectionDecrement = "decrement"
	ReconciliationDirectionIncrement = "increment"
	ReconciliationDirectionFinalize  = "finalize"
)

// ReconciliationTask records a ledger entry whose matching write could not be
// applied after the bounded repair retries. It is the operator queue: a row
// here means the ledger and the item disagree until someone replays the item
// write, or a terminal entry is stuck pending (direction finalize) until its
// close is replayed.
type ReconciliationTask struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID  `gorm:"column:transaction_id;type:uuid;not null"`
	ItemID        uuid.UUID  `gorm:"column:item_id;type:uuid;not null"`
	Amount        int        `gorm:"column:amount;not null"`
	Direction     string     `gorm:"column:direction;not null"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	LastError     string     `gorm:"column:last_error;not null;default:''"`
	ResolvedAt    *time.Time `gorm:"column:resolved_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
