package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/internal/items"
	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/pkg/config"
	"github.com/campuskit/schoolstock-backend/pkg/db"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/metrics"
	"github.com/campuskit/schoolstock-backend/pkg/pubsub"
)

// EventPublisher is the optional item-change feed. A nil publisher disables
// the feed; API polling stays correct without it.
type EventPublisher interface {
	PublishItemChanged(ctx context.Context, event pubsub.ItemChangedEvent) error
}

// Engine is the stock reconciliation engine. Every quantity movement runs
// through it as a two-write sequence: ledger entry first (less reversible),
// then a guarded item update. A refused guard cancels the ledger entry; a
// failed transport is retried and, on exhaustion, queued as a
// ReconciliationTask instead of being reported as success.
type Engine interface {
	Issue(ctx context.Context, input IssueInput) (*models.InventoryTransaction, error)
	Return(ctx context.Context, input ReturnInput) (*models.InventoryTransaction, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.InventoryTransaction, error)
	ListTasks(ctx context.Context, limit int) ([]models.ReconciliationTask, error)
	RetryTask(ctx context.Context, taskID uuid.UUID) (*models.ReconciliationTask, error)
}

// IssueInput covers both checkouts (type issue, returnable) and permanent
// consumption (type use, terminal at creation).
type IssueInput struct {
	ItemID             uuid.UUID
	Type               enums.TransactionType
	Quantity           int
	ExpectedReturnDate *time.Time
	RecipientName      string
	RecipientContact   *string
	Purpose            *string
	Notes              *string
	IssuedBy           uuid.UUID
}

// ReturnInput closes out a pending issue transaction.
type ReturnInput struct {
	TransactionID uuid.UUID
	Notes         *string
}

// AdjustInput is an operator stock correction. Positive deltas restock,
// negative deltas write off.
type AdjustInput struct {
	ItemID   uuid.UUID
	Delta    int
	Notes    *string
	IssuedBy uuid.UUID
}

// Params wires the engine's dependencies. Tx, Metrics and Publisher are
// optional; without Tx the bookkeeping writes run in autocommit.
type Params struct {
	Items     items.Repository
	Ledger    ledger.Repository
	Tasks     TaskRepository
	Tx        db.TxRunner
	Logger    *logger.Logger
	Metrics   *metrics.StockMetrics
	Publisher EventPublisher
	Config    config.StockConfig
}

type engine struct {
	items     items.Repository
	ledger    ledger.Repository
	tasks     TaskRepository
	tx        db.TxRunner
	logg      *logger.Logger
	metrics   *metrics.StockMetrics
	publisher EventPublisher
	cfg       config.StockConfig
	now       func() time.Time
}

// errGuardRefused distinguishes a business rejection of the conditional item
// update from a transport failure.
var errGuardRefused = errors.New("item update guard refused")

// NewEngine constructs the stock engine.
func NewEngine(params Params) (Engine, error) {
	if params.Items == nil {
		return nil, errors.New("item repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.Tasks == nil {
		return nil, errors.New("task repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}

	cfg := params.Config
	if cfg.RepairMaxAttempts <= 0 {
		cfg.RepairMaxAttempts = 3
	}
	if cfg.RepairBackoff <= 0 {
		cfg.RepairBackoff = 50 * time.Millisecond
	}

	txr := params.Tx
	if txr == nil {
		txr = db.NopTxRunner{}
	}

	return &engine{
		items:     params.Items,
		ledger:    params.Ledger,
		tasks:     params.Tasks,
		tx:        txr,
		logg:      params.Logger,
		metrics:   params.Metrics,
		publisher: params.Publisher,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

func (e *engine) Issue(ctx context.Context, input IssueInput) (*models.InventoryTransaction, error) {
	if err := e.validateIssueInput(input); err != nil {
		return nil, err
	}
	ctx = e.logg.WithItemID(ctx, input.ItemID.String())

	item, err := e.loadItem(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Status == enums.ItemStatusRetired {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item is retired")
	}

	entry := &models.InventoryTransaction{
		ItemID:             input.ItemID,
		Type:               input.Type,
		Quantity:           input.Quantity,
		Status:             enums.TransactionStatusPending,
		IssueDate:          e.now(),
		ExpectedReturnDate: input.ExpectedReturnDate,
		RecipientName:      input.RecipientName,
		RecipientContact:   input.RecipientContact,
		Purpose:            input.Purpose,
		Notes:              input.Notes,
		IssuedBy:           input.IssuedBy,
	}
	if err := e.ledger.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording transaction")
	}
	ctx = e.logg.WithTransactionID(ctx, entry.ID.String())

	if err := e.applyItemWrite(ctx, entry, models.ReconciliationDirectionDecrement, input.Quantity); err != nil {
		if errors.Is(err, errGuardRefused) {
			return nil, e.rejectInsufficient(ctx, entry, input.Quantity)
		}
		return nil, err
	}

	// use entries never come back; close them out immediately
	if input.Type == enums.TransactionTypeUse {
		e.finalizeEntry(ctx, entry)
	}

	e.emitItemEvent(ctx, pubsub.ItemEventIssued, entry)
	e.logg.Info(ctx, "stock issued")
	return entry, nil
}

func (e *engine) validateIssueInput(input IssueInput) error {
	if input.ItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if input.IssuedBy == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "issued_by is required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	switch input.Type {
	case enums.TransactionTypeIssue:
		if input.ExpectedReturnDate == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "expected return date is required for an issue")
		}
		if !input.ExpectedReturnDate.After(e.now()) {
			return pkgerrors.New(pkgerrors.CodeValidation, "return date must be in the future")
		}
		if input.RecipientName == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required for an issue")
		}
	case enums.TransactionTypeUse:
		if input.ExpectedReturnDate != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "use transactions cannot carry a return date")
		}
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "transaction type %q cannot be issued", input.Type)
	}
	return nil
}

func (e *engine) Return(ctx context.Context, input ReturnInput) (*models.InventoryTransaction, error) {
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	ctx = e.logg.WithTransactionID(ctx, input.TransactionID.String())

	entry, err := e.ledger.FindByID(ctx, input.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading transaction")
	}
	if entry.Type != enums.TransactionTypeIssue {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s transactions cannot be returned", entry.Type)
	}

	returnedAt := e.now()
	ok, err := e.ledger.MarkReturned(ctx, entry.ID, returnedAt, input.Notes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording return")
	}
	if !ok {
		// the status guard lost: the entry already reached a terminal state
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already returned or cancelled")
	}
	entry.Status = enums.TransactionStatusReturned
	entry.ActualReturnDate = &returnedAt
	if input.Notes != nil {
		entry.Notes = input.Notes
	}

	ctx = e.logg.WithItemID(ctx, entry.ItemID.String())
	if err := e.applyItemWrite(ctx, entry, models.ReconciliationDirectionIncrement, entry.Quantity); err != nil {
		if errors.Is(err, errGuardRefused) {
			// the return is recorded but the item refused the restock (it was
			// retired or deleted underneath us); hand it to an operator
			return nil, e.queueTask(ctx, entry, models.ReconciliationDirectionIncrement, entry.Quantity, "increment refused by item guard")
		}
		return nil, err
	}

	e.emitItemEvent(ctx, pubsub.ItemEventReturned, entry)
	e.logg.Info(ctx, "stock returned")
	return entry, nil
}

func (e *engine) Adjust(ctx context.Context, input AdjustInput) (*models.InventoryTransaction, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if input.IssuedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "issued_by is required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta cannot be zero")
	}
	ctx = e.logg.WithItemID(ctx, input.ItemID.String())

	item, err := e.loadItem(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Status == enums.ItemStatusRetired {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item is retired")
	}

	entryType := enums.TransactionTypeAdd
	amount := input.Delta
	direction := models.ReconciliationDirectionIncrement
	if input.Delta < 0 {
		entryType = enums.TransactionTypeRemove
		amount = -input.Delta
		direction = models.ReconciliationDirectionDecrement
	}

	entry := &models.InventoryTransaction{
		ItemID:    input.ItemID,
		Type:      entryType,
		Quantity:  amount,
		Status:    enums.TransactionStatusPending,
		IssueDate: e.now(),
		Notes:     input.Notes,
		IssuedBy:  input.IssuedBy,
	}
	if err := e.ledger.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording adjustment")
	}
	ctx = e.logg.WithTransactionID(ctx, entry.ID.String())

	if err := e.applyItemWrite(ctx, entry, direction, amount); err != nil {
		if errors.Is(err, errGuardRefused) {
			if direction == models.ReconciliationDirectionDecrement {
				return nil, e.rejectBelowZero(ctx, entry, amount)
			}
			e.compensate(ctx, entry, "item refused restock")
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item is retired")
		}
		return nil, err
	}

	// adjustments are terminal at creation
	e.finalizeEntry(ctx, entry)

	e.emitItemEvent(ctx, pubsub.ItemEventAdjusted, entry)
	e.logg.Info(ctx, "stock adjusted")
	return entry, nil
}

func (e *engine) ListTasks(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	return e.tasks.ListUnresolved(ctx, limit)
}

// RetryTask replays the write a queued task stands in for: the guarded item
// update, or the ledger close for finalize tasks. Invoked by an operator, so
// it runs the write once rather than looping.
func (e *engine) RetryTask(ctx context.Context, taskID uuid.UUID) (*models.ReconciliationTask, error) {
	if taskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id is required")
	}

	task, err := e.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reconciliation task not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading reconciliation task")
	}
	if task.ResolvedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "task already resolved")
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"task_id": task.ID.String(),
		"item_id": task.ItemID.String(),
	})

	var ok bool
	switch task.Direction {
	case models.ReconciliationDirectionDecrement:
		ok, err = e.items.ConditionalDecrement(ctx, task.ItemID, task.Amount)
	case models.ReconciliationDirectionIncrement:
		ok, err = e.items.Increment(ctx, task.ItemID, task.Amount)
	case models.ReconciliationDirectionFinalize:
		// closing an already-terminal entry is a no-op, not a refusal
		_, err = e.ledger.MarkReturned(ctx, task.TransactionID, e.now(), nil)
		ok = err == nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown task direction %q", task.Direction)
	}
	if err != nil {
		if recordErr := e.tasks.RecordAttempt(ctx, task.ID, err.Error()); recordErr != nil {
			e.logg.Error(ctx, "recording task attempt", recordErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replaying item write")
	}
	if !ok {
		if recordErr := e.tasks.RecordAttempt(ctx, task.ID, "item update guard refused"); recordErr != nil {
			e.logg.Error(ctx, "recording task attempt", recordErr)
		}
		if task.Direction == models.ReconciliationDirectionDecrement {
			return nil, e.insufficientError(ctx, task.ItemID, task.Amount)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "item refused restock")
	}

	// resolve the task and close the entry it stood in for as one unit
	resolvedAt := e.now()
	entry, entryErr := e.ledger.FindByID(ctx, task.TransactionID)
	needsClose := entryErr == nil &&
		task.Direction != models.ReconciliationDirectionFinalize &&
		entry.Type != enums.TransactionTypeIssue &&
		entry.Status == enums.TransactionStatusPending

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := e.tasks.WithTx(tx).MarkResolved(ctx, task.ID, resolvedAt); err != nil {
			return err
		}
		if needsClose {
			if _, err := e.ledger.WithTx(tx).MarkReturned(ctx, entry.ID, resolvedAt, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving task")
	}
	task.ResolvedAt = &resolvedAt
	e.metrics.IncTaskResolved()

	if entryErr == nil {
		if needsClose {
			entry.Status = enums.TransactionStatusReturned
			entry.ActualReturnDate = &resolvedAt
		}
		e.emitItemEvent(ctx, pubsub.ItemEventAdjusted, entry)
	}

	e.logg.Info(ctx, "reconciliation task resolved")
	return task, nil
}

// applyItemWrite runs the guarded quantity update with the bounded repair
// loop. Guard refusals surface as errGuardRefused immediately; transport
// failures are retried and, once exhausted, converted into a
// ReconciliationTask so the divergence is never silently dropped.
func (e *engine) applyItemWrite(ctx context.Context, entry *models.InventoryTransaction, direction string, amount int) error {
	var hadFailure bool

	backoff := retry.WithMaxRetries(uint64(e.cfg.RepairMaxAttempts), retry.NewConstant(e.cfg.RepairBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var ok bool
		var err error
		if direction == models.ReconciliationDirectionDecrement {
			ok, err = e.items.ConditionalDecrement(ctx, entry.ItemID, amount)
		} else {
			ok, err = e.items.Increment(ctx, entry.ItemID, amount)
		}
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				return err
			}
			hadFailure = true
			e.metrics.IncRepairAttempt("failure")
			return retry.RetryableError(err)
		}
		if !ok {
			return errGuardRefused
		}
		return nil
	})
	if err == nil {
		if hadFailure {
			e.metrics.IncRepairAttempt("success")
		}
		return nil
	}
	if errors.Is(err, errGuardRefused) || pkgerrors.As(err) != nil {
		return err
	}

	return e.queueTask(ctx, entry, direction, amount, err.Error())
}

// queueTask records the divergence for operators and reports it to the
// caller. The operation is not a success: the ledger entry exists but the
// item write never landed.
func (e *engine) queueTask(ctx context.Context, entry *models.InventoryTransaction, direction string, amount int, cause string) error {
	task, err := e.createTask(ctx, entry, direction, amount, cause)
	if err != nil {
		e.logg.Error(ctx, "queueing reconciliation task", err)
		return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "stock write failed and the reconciliation task could not be queued")
	}
	return pkgerrors.New(pkgerrors.CodeReconciliation, "stock update could not be applied; queued for reconciliation").
		WithDetails(map[string]any{"task_id": task.ID})
}

// createTask inserts the reconciliation record. The insert runs detached from
// the caller's cancellation: a request aborted mid-sequence is exactly the
// case the durable task exists for.
func (e *engine) createTask(ctx context.Context, entry *models.InventoryTransaction, direction string, amount int, cause string) (*models.ReconciliationTask, error) {
	task := &models.ReconciliationTask{
		TransactionID: entry.ID,
		ItemID:        entry.ItemID,
		Amount:        amount,
		Direction:     direction,
		Attempts:      e.cfg.RepairMaxAttempts,
		LastError:     cause,
	}
	if err := e.tasks.Create(context.WithoutCancel(ctx), task); err != nil {
		return nil, err
	}
	e.metrics.IncTaskQueued()
	e.logg.Warn(ctx, "stock write queued for reconciliation")
	return task, nil
}

// rejectInsufficient compensates a refused decrement by cancelling the ledger
// entry, then reports how much stock actually remains.
func (e *engine) rejectInsufficient(ctx context.Context, entry *models.InventoryTransaction, requested int) error {
	e.compensate(ctx, entry, "insufficient stock")
	e.metrics.IncInsufficientStock()
	return e.insufficientError(ctx, entry.ItemID, requested)
}

// rejectBelowZero is the adjustment flavor of the same refusal: a negative
// delta bigger than the stock on hand.
func (e *engine) rejectBelowZero(ctx context.Context, entry *models.InventoryTransaction, requested int) error {
	e.compensate(ctx, entry, "adjustment below zero")
	e.metrics.IncInsufficientStock()
	available, err := e.refusalState(ctx, entry.ItemID)
	if err != nil {
		return err
	}
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock,
		"adjustment would take quantity below zero: only %d available", available).
		WithDetails(map[string]any{"available": available, "requested": requested})
}

func (e *engine) insufficientError(ctx context.Context, itemID uuid.UUID, requested int) error {
	available, err := e.refusalState(ctx, itemID)
	if err != nil {
		return err
	}
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "only %d available", available).
		WithDetails(map[string]any{"available": available, "requested": requested})
}

// refusalState re-reads the item behind a refused guard: a retired or missing
// row is its own error, anything else was a quantity refusal.
func (e *engine) refusalState(ctx context.Context, itemID uuid.UUID) (int, error) {
	item, err := e.items.FindByID(ctx, itemID)
	switch {
	case err == nil && item.Status == enums.ItemStatusRetired:
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "item is retired")
	case err == nil:
		return item.Quantity, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	return 0, nil
}

// compensate cancels the ledger entry behind a refused guard. It runs
// detached from the caller's cancellation so an aborted request cannot leave
// the rejected entry pending.
func (e *engine) compensate(ctx context.Context, entry *models.InventoryTransaction, reason string) {
	ok, err := e.ledger.Cancel(context.WithoutCancel(ctx), entry.ID, reason)
	if err != nil {
		// the entry stays pending; surfaced in logs rather than hidden
		e.logg.Error(ctx, "cancelling rejected ledger entry", err)
		return
	}
	if ok {
		entry.Status = enums.TransactionStatusCancelled
	}
}

// finalizeEntry closes a terminal-at-creation entry. The quantity write has
// already landed, so a close failure never fails the operation: it retries on
// a detached context and, when exhausted, queues a finalize task instead of
// leaving the entry silently pending.
func (e *engine) finalizeEntry(ctx context.Context, entry *models.InventoryTransaction) {
	closedAt := e.now()
	detached := context.WithoutCancel(ctx)

	var ok bool
	backoff := retry.WithMaxRetries(uint64(e.cfg.RepairMaxAttempts), retry.NewConstant(e.cfg.RepairBackoff))
	err := retry.Do(detached, backoff, func(ctx context.Context) error {
		var err error
		ok, err = e.ledger.MarkReturned(ctx, entry.ID, closedAt, nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if _, qErr := e.createTask(ctx, entry, models.ReconciliationDirectionFinalize, entry.Quantity, err.Error()); qErr != nil {
			e.logg.Error(ctx, "closing terminal ledger entry", err)
		}
		return
	}
	if ok {
		entry.Status = enums.TransactionStatusReturned
		entry.ActualReturnDate = &closedAt
	}
}

func (e *engine) loadItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	item, err := e.items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading inventory item")
	}
	return item, nil
}

func (e *engine) emitItemEvent(ctx context.Context, eventType string, entry *models.InventoryTransaction) {
	if e.publisher == nil {
		return
	}

	item, err := e.items.FindByID(ctx, entry.ItemID)
	if err != nil {
		e.logg.Error(ctx, "loading item for change event", err)
		return
	}

	txID := entry.ID
	event := pubsub.ItemChangedEvent{
		Type:          eventType,
		ItemID:        item.ID,
		TransactionID: &txID,
		Quantity:      item.Quantity,
		Status:        item.Status.String(),
		OccurredAt:    e.now(),
	}
	if err := e.publisher.PublishItemChanged(ctx, event); err != nil {
		e.logg.Error(ctx, fmt.Sprintf("publishing %s event", eventType), err)
	}
}
