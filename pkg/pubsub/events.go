package pubsub

import (
	"time"

	"github.com/google/uuid"
)

const (
	ItemEventIssued   = "item.issued"
	ItemEventReturned = "item.returned"
	ItemEventAdjusted = "item.adjusted"
)

// ItemChangedEvent notifies subscribers that an item's quantity or status
// changed. Consumers that miss events stay correct by re-reading the item.
type ItemChangedEvent struct {
	Type          string     `json:"type"`
	ItemID        uuid.UUID  `json:"item_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Quantity      int        `json:"quantity"`
	Status        string     `json:"status"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
