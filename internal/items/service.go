package items

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

// Service exposes catalog-side item management. Quantity is deliberately
// absent from UpdateItemInput: after creation it only moves through the stock
// engine so the transaction ledger stays in step.
type Service interface {
	Create(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*models.InventoryItem, error)
	Retire(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
}

// CreateItemInput captures the fields accepted when registering an item.
type CreateItemInput struct {
	Name          string
	Description   *string
	SKU           string
	SerialNumber  *string
	Manufacturer  *string
	Location      *string
	CategoryID    *uuid.UUID
	AreaID        *uuid.UUID
	Quantity      int
	MinStockLevel int
	UnitPrice     decimal.Decimal
	Status        enums.ItemStatus
	Condition     enums.ItemCondition
}

// UpdateItemInput captures partial updates; nil fields are left unchanged.
type UpdateItemInput struct {
	Name          *string
	Description   *string
	SKU           *string
	SerialNumber  *string
	Manufacturer  *string
	Location      *string
	CategoryID    *uuid.UUID
	AreaID        *uuid.UUID
	MinStockLevel *int
	UnitPrice     *decimal.Decimal
	Status        *enums.ItemStatus
	Condition     *enums.ItemCondition
}

type service struct {
	repo Repository
	txr  db.TxRunner
	logg *logger.Logger
}

// NewService wires an item service with the provided repository. A nil
// runner degrades multi-write operations to autocommit.
func NewService(repo Repository, txr db.TxRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("item repository required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if txr == nil {
		txr = db.NopTxRunner{}
	}
	return &service{repo: repo, txr: txr, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if strings.TrimSpace(input.SKU) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item sku is required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.MinStockLevel < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min stock level cannot be negative")
	}
	if input.UnitPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}

	status := input.Status
	if status == "" {
		status = enums.ItemStatusAvailable
	}
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid item status %q", status)
	}
	// Tracked statuses are derived from quantity, never chosen by the caller.
	if status.Tracked() {
		status = trackedStatusFor(input.Quantity)
	}

	condition := input.Condition
	if condition == "" {
		condition = enums.ItemConditionGood
	}
	if !condition.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid item condition %q", condition)
	}

	item := &models.InventoryItem{
		Name:          strings.TrimSpace(input.Name),
		Description:   input.Description,
		SKU:           strings.TrimSpace(input.SKU),
		SerialNumber:  input.SerialNumber,
		Manufacturer:  input.Manufacturer,
		Location:      input.Location,
		CategoryID:    input.CategoryID,
		AreaID:        input.AreaID,
		Quantity:      input.Quantity,
		MinStockLevel: input.MinStockLevel,
		UnitPrice:     input.UnitPrice,
		Status:        status,
		Condition:     condition,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown category or area")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating inventory item")
	}

	s.logg.Info(s.logg.WithItemID(ctx, item.ID.String()), "inventory item created")
	return item, nil
}

// Update writes only the columns the caller actually sent. Quantity and
// status never ride along on a metadata edit: the stock engine owns quantity,
// and a requested tracked status is recomputed from the live quantity inside
// the statement rather than from the row read here.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*models.InventoryItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.SKU != nil {
		if strings.TrimSpace(*input.SKU) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item sku cannot be empty")
		}
		updates["sku"] = strings.TrimSpace(*input.SKU)
	}
	if input.SerialNumber != nil {
		updates["serial_number"] = *input.SerialNumber
	}
	if input.Manufacturer != nil {
		updates["manufacturer"] = *input.Manufacturer
	}
	if input.Location != nil {
		updates["location"] = *input.Location
	}
	if input.CategoryID != nil {
		updates["category_id"] = *input.CategoryID
	}
	if input.AreaID != nil {
		updates["area_id"] = *input.AreaID
	}
	if input.MinStockLevel != nil {
		if *input.MinStockLevel < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "min stock level cannot be negative")
		}
		updates["min_stock_level"] = *input.MinStockLevel
	}
	if input.UnitPrice != nil {
		if input.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
		}
		updates["unit_price"] = *input.UnitPrice
	}
	if input.Condition != nil {
		if !input.Condition.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid item condition %q", *input.Condition)
		}
		updates["condition"] = *input.Condition
	}

	syncTracked := false
	if input.Status != nil {
		requested := *input.Status
		if !requested.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid item status %q", requested)
		}
		if requested == enums.ItemStatusCheckedOut {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checked_out is set by stock movement, not directly")
		}
		if item.Status == enums.ItemStatusRetired {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item is retired")
		}
		if requested.Tracked() {
			syncTracked = true
		} else {
			updates["status"] = requested
		}
	}

	if len(updates) > 0 {
		ok, err := s.repo.UpdateColumns(ctx, id, updates)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown category or area")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating inventory item")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
	}
	if syncTracked {
		if _, err := s.repo.SyncTrackedStatus(ctx, id); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating inventory item")
		}
	}

	return s.Get(ctx, id)
}

// Retire is the soft delete. The row stays so ledger history keeps its
// referent; the stock engine refuses further movement on retired items. The
// status flips through a guarded single-column update, so quantity is never
// rewritten from the snapshot read here.
func (s *service) Retire(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	ok, err := s.repo.Retire(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retiring inventory item")
	}
	if !ok {
		// either the row is missing or it was already retired
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item is already retired")
	}

	s.logg.Info(s.logg.WithItemID(ctx, id.String()), "inventory item retired")
	return s.Get(ctx, id)
}

// Delete runs the history check and the delete in one transaction so a
// transaction recorded between the two cannot orphan its item reference.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	err := s.txr.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		hasTx, err := repo.HasTransactions(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking item transactions")
		}
		if hasTx {
			return pkgerrors.New(pkgerrors.CodeConflict, "item has transaction history; retire it instead of deleting")
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting inventory item")
	}

	s.logg.Info(s.logg.WithItemID(ctx, id.String()), "inventory item deleted")
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading inventory item")
	}
	return item, nil
}

func (s *service) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	return s.repo.List(ctx, query)
}

func trackedStatusFor(quantity int) enums.ItemStatus {
	if quantity == 0 {
		return enums.ItemStatusCheckedOut
	}
	return enums.ItemStatusAvailable
}
