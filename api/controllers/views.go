package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
)

type itemView struct {
	ID            uuid.UUID           `json:"id"`
	Name          string              `json:"name"`
	Description   *string             `json:"description,omitempty"`
	SKU           string              `json:"sku"`
	SerialNumber  *string             `json:"serialNumber,omitempty"`
	Manufacturer  *string             `json:"manufacturer,omitempty"`
	Location      *string             `json:"location,omitempty"`
	Category      *refView            `json:"category,omitempty"`
	Area          *refView            `json:"area,omitempty"`
	Quantity      int                 `json:"quantity"`
	MinStockLevel int                 `json:"minStockLevel"`
	UnitPrice     decimal.Decimal     `json:"unitPrice"`
	Status        enums.ItemStatus    `json:"status"`
	Condition     enums.ItemCondition `json:"condition"`
	LowStock      bool                `json:"lowStock"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

type refView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func toItemView(item models.InventoryItem) itemView {
	view := itemView{
		ID:            item.ID,
		Name:          item.Name,
		Description:   item.Description,
		SKU:           item.SKU,
		SerialNumber:  item.SerialNumber,
		Manufacturer:  item.Manufacturer,
		Location:      item.Location,
		Quantity:      item.Quantity,
		MinStockLevel: item.MinStockLevel,
		UnitPrice:     item.UnitPrice,
		Status:        item.Status,
		Condition:     item.Condition,
		LowStock:      item.IsLowStock(),
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
	if item.Category != nil {
		view.Category = &refView{ID: item.Category.ID, Name: item.Category.Name}
	}
	if item.Area != nil {
		view.Area = &refView{ID: item.Area.ID, Name: item.Area.Name}
	}
	return view
}

func toItemViews(items []models.InventoryItem) []itemView {
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, toItemView(item))
	}
	return views
}

type transactionView struct {
	ID                 uuid.UUID               `json:"id"`
	ItemID             uuid.UUID               `json:"itemId"`
	ItemName           string                  `json:"itemName,omitempty"`
	Type               enums.TransactionType   `json:"type"`
	Quantity           int                     `json:"quantity"`
	Status             enums.TransactionStatus `json:"status"`
	Overdue            bool                    `json:"overdue"`
	IssueDate          time.Time               `json:"issueDate"`
	ExpectedReturnDate *time.Time              `json:"expectedReturnDate,omitempty"`
	ActualReturnDate   *time.Time              `json:"actualReturnDate,omitempty"`
	RecipientName      string                  `json:"recipientName,omitempty"`
	RecipientContact   *string                 `json:"recipientContact,omitempty"`
	Purpose            *string                 `json:"purpose,omitempty"`
	Notes              *string                 `json:"notes,omitempty"`
	IssuedBy           uuid.UUID               `json:"issuedBy"`
	CreatedAt          time.Time               `json:"createdAt"`
}

func toTransactionView(entry models.InventoryTransaction, overdue bool) transactionView {
	view := transactionView{
		ID:                 entry.ID,
		ItemID:             entry.ItemID,
		Type:               entry.Type,
		Quantity:           entry.Quantity,
		Status:             entry.Status,
		Overdue:            overdue,
		IssueDate:          entry.IssueDate,
		ExpectedReturnDate: entry.ExpectedReturnDate,
		ActualReturnDate:   entry.ActualReturnDate,
		RecipientName:      entry.RecipientName,
		RecipientContact:   entry.RecipientContact,
		Purpose:            entry.Purpose,
		Notes:              entry.Notes,
		IssuedBy:           entry.IssuedBy,
		CreatedAt:          entry.CreatedAt,
	}
	if entry.Item != nil {
		view.ItemName = entry.Item.Name
	}
	return view
}

func toLedgerViews(entries []ledger.TransactionView) []transactionView {
	views := make([]transactionView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, toTransactionView(entry.InventoryTransaction, entry.Overdue))
	}
	return views
}

type catalogView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toCategoryView(category models.Category) catalogView {
	return catalogView{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		CreatedAt:   category.CreatedAt,
		UpdatedAt:   category.UpdatedAt,
	}
}

func toCategoryViews(categories []models.Category) []catalogView {
	views := make([]catalogView, 0, len(categories))
	for _, category := range categories {
		views = append(views, toCategoryView(category))
	}
	return views
}

func toAreaView(area models.Area) catalogView {
	return catalogView{
		ID:          area.ID,
		Name:        area.Name,
		Description: area.Description,
		CreatedAt:   area.CreatedAt,
		UpdatedAt:   area.UpdatedAt,
	}
}

func toAreaViews(areas []models.Area) []catalogView {
	views := make([]catalogView, 0, len(areas))
	for _, area := range areas {
		views = append(views, toAreaView(area))
	}
	return views
}

type taskView struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transactionId"`
	ItemID        uuid.UUID  `json:"itemId"`
	Amount        int        `json:"amount"`
	Direction     string     `json:"direction"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError,omitempty"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toTaskView(task models.ReconciliationTask) taskView {
	return taskView{
		ID:            task.ID,
		TransactionID: task.TransactionID,
		ItemID:        task.ItemID,
		Amount:        task.Amount,
		Direction:     task.Direction,
		Attempts:      task.Attempts,
		LastError:     task.LastError,
		ResolvedAt:    task.ResolvedAt,
		CreatedAt:     task.CreatedAt,
	}
}

func toTaskViews(tasks []models.ReconciliationTask) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, toTaskView(task))
	}
	return views
}
