package stock

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/internal/items"
	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/pkg/config"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/pubsub"
)

type testEnv struct {
	conn   *gorm.DB
	engine Engine
	items  items.Repository
	ledger ledger.Repository
	tasks  TaskRepository
	events *capturePublisher
	flaky  *flakyItems
}

type capturePublisher struct {
	mu     sync.Mutex
	events []pubsub.ItemChangedEvent
}

func (c *capturePublisher) PublishItemChanged(_ context.Context, event pubsub.ItemChangedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// flakyItems injects transport failures into the quantity writes to exercise
// the repair loop and the reconciliation queue.
type flakyItems struct {
	items.Repository
	mu       sync.Mutex
	failures int
}

func (f *flakyItems) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *flakyItems) takeFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakyItems) ConditionalDecrement(ctx context.Context, id uuid.UUID, amount int) (bool, error) {
	if f.takeFailure() {
		return false, errors.New("connection reset")
	}
	return f.Repository.ConditionalDecrement(ctx, id, amount)
}

func (f *flakyItems) Increment(ctx context.Context, id uuid.UUID, amount int) (bool, error) {
	if f.takeFailure() {
		return false, errors.New("connection reset")
	}
	return f.Repository.Increment(ctx, id, amount)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.InventoryItem{},
		&models.InventoryTransaction{},
		&models.ReconciliationTask{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	itemRepo := items.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	taskRepo := NewTaskRepository(conn)
	events := &capturePublisher{}
	flaky := &flakyItems{Repository: itemRepo}

	eng, err := NewEngine(Params{
		Items:     flaky,
		Ledger:    ledgerRepo,
		Tasks:     taskRepo,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Publisher: events,
		Config: config.StockConfig{
			RepairMaxAttempts: 2,
			RepairBackoff:     time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	return &testEnv{
		conn:   conn,
		engine: eng,
		items:  itemRepo,
		ledger: ledgerRepo,
		tasks:  taskRepo,
		events: events,
		flaky:  flaky,
	}
}

func (env *testEnv) seedItem(t *testing.T, quantity, minStock int) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		Name:          "Lab Kit",
		SKU:           "SKU-" + uuid.NewString()[:8],
		Quantity:      quantity,
		MinStockLevel: minStock,
		Status:        enums.ItemStatusAvailable,
		Condition:     enums.ItemConditionGood,
	}
	if quantity == 0 {
		item.Status = enums.ItemStatusCheckedOut
	}
	if err := env.conn.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func (env *testEnv) reloadItem(t *testing.T, id uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := env.conn.First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	return item
}

func (env *testEnv) reloadEntry(t *testing.T, id uuid.UUID) models.InventoryTransaction {
	t.Helper()
	var entry models.InventoryTransaction
	if err := env.conn.First(&entry, "id = ?", id).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	return entry
}

func futureDate() *time.Time {
	d := time.Now().Add(7 * 24 * time.Hour)
	return &d
}

func issueInput(itemID uuid.UUID, qty int) IssueInput {
	return IssueInput{
		ItemID:             itemID,
		Type:               enums.TransactionTypeIssue,
		Quantity:           qty,
		ExpectedReturnDate: futureDate(),
		RecipientName:      "Ms. Rivera",
		IssuedBy:           uuid.New(),
	}
}

func TestIssueDecrementsAndFlagsLowStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 10, 5)

	entry, err := env.engine.Issue(ctx, issueInput(item.ID, 6))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if entry.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending entry, got %s", entry.Status)
	}

	loaded := env.reloadItem(t, item.ID)
	if loaded.Quantity != 4 || loaded.Status != enums.ItemStatusAvailable {
		t.Fatalf("unexpected item state: qty=%d status=%s", loaded.Quantity, loaded.Status)
	}
	if !loaded.IsLowStock() {
		t.Fatal("4 on hand with min 5 should read as low stock")
	}
	if env.events.count() != 1 {
		t.Fatalf("expected 1 change event, got %d", env.events.count())
	}
}

func TestIssueInsufficientStockCompensates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 4, 0)

	_, err := env.engine.Issue(ctx, issueInput(item.ID, 5))
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if typed := pkgerrors.As(err); typed.Message() != "only 4 available" {
		t.Fatalf("unexpected message %q", typed.Message())
	}

	// quantity untouched, ledger entry compensated to cancelled
	loaded := env.reloadItem(t, item.ID)
	if loaded.Quantity != 4 {
		t.Fatalf("quantity moved on a rejected issue: %d", loaded.Quantity)
	}
	var entries []models.InventoryTransaction
	if err := env.conn.Find(&entries, "item_id = ?", item.ID).Error; err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != enums.TransactionStatusCancelled {
		t.Fatalf("expected one cancelled entry, got %+v", entries)
	}
}

func TestIssueReturnRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 1, 0)

	entry, err := env.engine.Issue(ctx, issueInput(item.ID, 1))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	afterIssue := env.reloadItem(t, item.ID)
	if afterIssue.Quantity != 0 || afterIssue.Status != enums.ItemStatusCheckedOut {
		t.Fatalf("unexpected state after issue: qty=%d status=%s", afterIssue.Quantity, afterIssue.Status)
	}

	returned, err := env.engine.Return(ctx, ReturnInput{TransactionID: entry.ID})
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if returned.Status != enums.TransactionStatusReturned || returned.ActualReturnDate == nil {
		t.Fatalf("unexpected returned entry: %+v", returned)
	}

	afterReturn := env.reloadItem(t, item.ID)
	if afterReturn.Quantity != 1 || afterReturn.Status != enums.ItemStatusAvailable {
		t.Fatalf("round trip did not restore item: qty=%d status=%s", afterReturn.Quantity, afterReturn.Status)
	}
}

func TestReturnIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 3, 0)

	entry, err := env.engine.Issue(ctx, issueInput(item.ID, 2))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := env.engine.Return(ctx, ReturnInput{TransactionID: entry.ID}); err != nil {
		t.Fatalf("first Return: %v", err)
	}

	_, err = env.engine.Return(ctx, ReturnInput{TransactionID: entry.ID})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double return, got %v", err)
	}

	// no double increment
	loaded := env.reloadItem(t, item.ID)
	if loaded.Quantity != 3 {
		t.Fatalf("double return moved quantity: %d", loaded.Quantity)
	}
}

func TestUseIsTerminalAtCreation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 5, 0)

	entry, err := env.engine.Issue(ctx, IssueInput{
		ItemID:   item.ID,
		Type:     enums.TransactionTypeUse,
		Quantity: 2,
		IssuedBy: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if entry.Status != enums.TransactionStatusReturned || entry.ActualReturnDate == nil {
		t.Fatalf("use entry should be terminal: %+v", entry)
	}
	if entry.ExpectedReturnDate != nil {
		t.Fatal("use entry must not carry an expected return date")
	}

	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 3 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}

	// a terminal use entry cannot be returned
	if _, err := env.engine.Return(ctx, ReturnInput{TransactionID: entry.ID}); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestIssueValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 5, 0)

	past := time.Now().Add(-time.Hour)
	future := futureDate()

	cases := []struct {
		name  string
		input IssueInput
	}{
		{"zero quantity", IssueInput{ItemID: item.ID, Type: enums.TransactionTypeIssue, Quantity: 0, ExpectedReturnDate: future, RecipientName: "A", IssuedBy: uuid.New()}},
		{"past return date", IssueInput{ItemID: item.ID, Type: enums.TransactionTypeIssue, Quantity: 1, ExpectedReturnDate: &past, RecipientName: "A", IssuedBy: uuid.New()}},
		{"missing return date", IssueInput{ItemID: item.ID, Type: enums.TransactionTypeIssue, Quantity: 1, RecipientName: "A", IssuedBy: uuid.New()}},
		{"missing recipient", IssueInput{ItemID: item.ID, Type: enums.TransactionTypeIssue, Quantity: 1, ExpectedReturnDate: future, IssuedBy: uuid.New()}},
		{"use with return date", IssueInput{ItemID: item.ID, Type: enums.TransactionTypeUse, Quantity: 1, ExpectedReturnDate: future, IssuedBy: uuid.New()}},
		{"wrong type", IssueInput{ItemID: item.ID, Type: enums.TransactionTypeAdd, Quantity: 1, IssuedBy: uuid.New()}},
	}

	for _, tc := range cases {
		if _, err := env.engine.Issue(ctx, tc.input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	// nothing was written
	var count int64
	if err := env.conn.Model(&models.InventoryTransaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected inputs wrote %d ledger entries", count)
	}
}

func TestIssueRejectsRetiredAndMissingItems(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	retired := env.seedItem(t, 5, 0)
	if err := env.conn.Model(retired).Update("status", enums.ItemStatusRetired).Error; err != nil {
		t.Fatalf("retire item: %v", err)
	}

	if _, err := env.engine.Issue(ctx, issueInput(retired.ID, 1)); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for retired item, got %v", err)
	}
	if _, err := env.engine.Issue(ctx, issueInput(uuid.New(), 1)); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReturnNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	if _, err := env.engine.Return(context.Background(), ReturnInput{TransactionID: uuid.New()}); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdjustPositiveAndNegative(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 2, 0)
	actor := uuid.New()

	added, err := env.engine.Adjust(ctx, AdjustInput{ItemID: item.ID, Delta: 5, IssuedBy: actor})
	if err != nil {
		t.Fatalf("Adjust +5: %v", err)
	}
	if added.Type != enums.TransactionTypeAdd || added.Status != enums.TransactionStatusReturned {
		t.Fatalf("unexpected add entry: %+v", added)
	}
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 7 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}

	removed, err := env.engine.Adjust(ctx, AdjustInput{ItemID: item.ID, Delta: -3, IssuedBy: actor})
	if err != nil {
		t.Fatalf("Adjust -3: %v", err)
	}
	if removed.Type != enums.TransactionTypeRemove || removed.Quantity != 3 {
		t.Fatalf("unexpected remove entry: %+v", removed)
	}
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 4 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}

	if _, err := env.engine.Adjust(ctx, AdjustInput{ItemID: item.ID, Delta: 0, IssuedBy: actor}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero delta, got %v", err)
	}

	// removing more than on hand is refused and compensated
	_, err = env.engine.Adjust(ctx, AdjustInput{ItemID: item.ID, Delta: -10, IssuedBy: actor})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if typed := pkgerrors.As(err); typed.Message() != "adjustment would take quantity below zero: only 4 available" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 4 {
		t.Fatalf("refused adjust moved quantity: %d", loaded.Quantity)
	}
}

func TestTransportFailureRepairsInline(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 5, 0)

	// one transient failure: the repair loop lands the write
	env.flaky.failNext(1)
	if _, err := env.engine.Issue(ctx, issueInput(item.ID, 2)); err != nil {
		t.Fatalf("Issue with transient failure: %v", err)
	}
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 3 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}
}

func TestExhaustedRepairQueuesReconciliationTask(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, 5, 0)

	env.flaky.failNext(100)
	entry, issueErr := func() (*models.InventoryTransaction, error) {
		return env.engine.Issue(ctx, issueInput(item.ID, 2))
	}()
	if entry != nil {
		t.Fatal("a queued reconciliation must not be reported as success")
	}
	if !pkgerrors.IsCode(issueErr, pkgerrors.CodeReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", issueErr)
	}
	env.flaky.failNext(0)

	// the item was never touched, the ledger entry exists, the task is queued
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 5 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}
	tasks, err := env.engine.ListTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Direction != models.ReconciliationDirectionDecrement || tasks[0].Amount != 2 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	// operator retry replays the write and resolves the task
	resolved, err := env.engine.RetryTask(ctx, tasks[0].ID)
	if err != nil {
		t.Fatalf("RetryTask: %v", err)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("task not marked resolved")
	}
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 3 {
		t.Fatalf("retry did not apply the write: quantity %d", loaded.Quantity)
	}

	// a second retry is refused
	if _, err := env.engine.RetryTask(ctx, tasks[0].ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

// cancellingItems kills the request context from inside the item write,
// simulating a client that disconnects after the ledger insert.
type cancellingItems struct {
	items.Repository
	cancel context.CancelFunc
}

func (c *cancellingItems) ConditionalDecrement(ctx context.Context, _ uuid.UUID, _ int) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func TestCancelledRequestStillQueuesReconciliation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := NewEngine(Params{
		Items:  &cancellingItems{Repository: env.items, cancel: cancel},
		Ledger: env.ledger,
		Tasks:  env.tasks,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.StockConfig{RepairMaxAttempts: 2, RepairBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = eng.Issue(ctx, issueInput(item.ID, 2))
	if !pkgerrors.IsCode(err, pkgerrors.CodeReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}

	// the task landed despite the dead request context
	tasks, err := env.engine.ListTasks(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Direction != models.ReconciliationDirectionDecrement || tasks[0].Amount != 2 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 5 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}
}

// flakyLedger injects failures into the status flip that closes terminal
// entries.
type flakyLedger struct {
	ledger.Repository
	mu       sync.Mutex
	failures int
}

func (f *flakyLedger) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *flakyLedger) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time, notes *string) (bool, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return false, errors.New("connection reset")
	}
	return f.Repository.MarkReturned(ctx, id, at, notes)
}

func TestFailedTerminalCloseQueuesFinalizeTask(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 6, 0)
	flaky := &flakyLedger{Repository: env.ledger}

	eng, err := NewEngine(Params{
		Items:  env.items,
		Ledger: flaky,
		Tasks:  env.tasks,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.StockConfig{RepairMaxAttempts: 2, RepairBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()
	useInput := func(qty int) IssueInput {
		return IssueInput{ItemID: item.ID, Type: enums.TransactionTypeUse, Quantity: qty, IssuedBy: uuid.New()}
	}

	// a transient failure is repaired inline
	flaky.failNext(1)
	entry, err := eng.Issue(ctx, useInput(1))
	if err != nil {
		t.Fatalf("Use with transient failure: %v", err)
	}
	if entry.Status != enums.TransactionStatusReturned {
		t.Fatalf("inline retry did not close the entry: %s", entry.Status)
	}

	// a persistent failure must not fail the movement (the quantity already
	// moved; failing here would invite a double decrement) but must not be
	// dropped either
	flaky.failNext(100)
	entry, err = eng.Issue(ctx, useInput(2))
	if err != nil {
		t.Fatalf("Use with persistent close failure: %v", err)
	}
	flaky.failNext(0)

	if loaded := env.reloadItem(t, item.ID); loaded.Quantity != 3 {
		t.Fatalf("unexpected quantity %d", loaded.Quantity)
	}
	if reloaded := env.reloadEntry(t, entry.ID); reloaded.Status != enums.TransactionStatusPending {
		t.Fatalf("expected the entry to stay pending, got %s", reloaded.Status)
	}

	tasks, err := eng.ListTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Direction != models.ReconciliationDirectionFinalize || tasks[0].TransactionID != entry.ID {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	// operator replay closes the entry
	resolved, err := eng.RetryTask(ctx, tasks[0].ID)
	if err != nil {
		t.Fatalf("RetryTask: %v", err)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("task not marked resolved")
	}
	if reloaded := env.reloadEntry(t, entry.ID); reloaded.Status != enums.TransactionStatusReturned {
		t.Fatalf("replayed close did not land: %s", reloaded.Status)
	}
}

func TestRetryTaskNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	if _, err := env.engine.RetryTask(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
