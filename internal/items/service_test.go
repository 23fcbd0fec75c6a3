package items

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

type fakeRepository struct {
	mu           sync.Mutex
	items        map[uuid.UUID]models.InventoryItem
	transactions map[uuid.UUID]bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		items:        map[uuid.UUID]models.InventoryItem{},
		transactions: map[uuid.UUID]bool{},
	}
}

func (f *fakeRepository) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepository) Create(_ context.Context, item *models.InventoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	f.items[item.ID] = *item
	return nil
}

func (f *fakeRepository) UpdateColumns(_ context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return false, nil
	}
	for column, value := range updates {
		switch column {
		case "name":
			item.Name = value.(string)
		case "description":
			v := value.(string)
			item.Description = &v
		case "sku":
			item.SKU = value.(string)
		case "serial_number":
			v := value.(string)
			item.SerialNumber = &v
		case "manufacturer":
			v := value.(string)
			item.Manufacturer = &v
		case "location":
			v := value.(string)
			item.Location = &v
		case "category_id":
			v := value.(uuid.UUID)
			item.CategoryID = &v
		case "area_id":
			v := value.(uuid.UUID)
			item.AreaID = &v
		case "min_stock_level":
			item.MinStockLevel = value.(int)
		case "unit_price":
			item.UnitPrice = value.(decimal.Decimal)
		case "condition":
			item.Condition = value.(enums.ItemCondition)
		case "status":
			item.Status = value.(enums.ItemStatus)
		}
	}
	f.items[id] = item
	return true, nil
}

func (f *fakeRepository) SyncTrackedStatus(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status == enums.ItemStatusRetired {
		return false, nil
	}
	if item.Quantity == 0 {
		item.Status = enums.ItemStatusCheckedOut
	} else {
		item.Status = enums.ItemStatusAvailable
	}
	f.items[id] = item
	return true, nil
}

func (f *fakeRepository) Retire(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status == enums.ItemStatusRetired {
		return false, nil
	}
	item.Status = enums.ItemStatusRetired
	f.items[id] = item
	return true, nil
}

func (f *fakeRepository) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeRepository) FindByID(_ context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := item
	return &copied, nil
}

func (f *fakeRepository) List(_ context.Context, _ ListQuery) (*ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := &ListResult{}
	for _, item := range f.items {
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (f *fakeRepository) HasTransactions(_ context.Context, itemID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transactions[itemID], nil
}

func (f *fakeRepository) ConditionalDecrement(_ context.Context, id uuid.UUID, amount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status == enums.ItemStatusRetired || item.Quantity < amount {
		return false, nil
	}
	item.Quantity -= amount
	if item.Quantity == 0 && item.Status == enums.ItemStatusAvailable {
		item.Status = enums.ItemStatusCheckedOut
	}
	f.items[id] = item
	return true, nil
}

func (f *fakeRepository) Increment(_ context.Context, id uuid.UUID, amount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status == enums.ItemStatusRetired {
		return false, nil
	}
	item.Quantity += amount
	if item.Status == enums.ItemStatusCheckedOut {
		item.Status = enums.ItemStatusAvailable
	}
	f.items[id] = item
	return true, nil
}

func newTestService(t *testing.T) (Service, *fakeRepository) {
	t.Helper()
	repo := newFakeRepository()
	svc, err := NewService(repo, nil, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateItemInput
	}{
		{"missing name", CreateItemInput{SKU: "S-1"}},
		{"missing sku", CreateItemInput{Name: "Ruler"}},
		{"negative quantity", CreateItemInput{Name: "Ruler", SKU: "S-1", Quantity: -1}},
		{"negative min stock", CreateItemInput{Name: "Ruler", SKU: "S-1", MinStockLevel: -1}},
		{"negative price", CreateItemInput{Name: "Ruler", SKU: "S-1", UnitPrice: decimal.NewFromInt(-5)}},
		{"bad condition", CreateItemInput{Name: "Ruler", SKU: "S-1", Condition: "broken"}},
	}

	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateDerivesTrackedStatus(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	zero, err := svc.Create(ctx, CreateItemInput{Name: "Laptop", SKU: "S-1", Quantity: 0})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if zero.Status != enums.ItemStatusCheckedOut {
		t.Fatalf("zero-quantity item should start checked_out, got %s", zero.Status)
	}

	stocked, err := svc.Create(ctx, CreateItemInput{
		Name: "Charger", SKU: "S-2", Quantity: 3, Status: enums.ItemStatusCheckedOut,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if stocked.Status != enums.ItemStatusAvailable {
		t.Fatalf("stocked item cannot be checked_out, got %s", stocked.Status)
	}
}

func TestUpdateRejectsDirectCheckedOut(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateItemInput{Name: "Tablet", SKU: "S-3", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status := enums.ItemStatusCheckedOut
	_, err = svc.Update(ctx, item.ID, UpdateItemInput{Status: &status})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestUpdateTrackedStatusFollowsQuantity(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateItemInput{
		Name: "Camera", SKU: "S-4", Quantity: 0, Status: enums.ItemStatusMaintenance,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Status != enums.ItemStatusMaintenance {
		t.Fatalf("expected maintenance, got %s", item.Status)
	}

	// leaving maintenance with zero stock lands on checked_out, not available
	status := enums.ItemStatusAvailable
	updated, err := svc.Update(ctx, item.ID, UpdateItemInput{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != enums.ItemStatusCheckedOut {
		t.Fatalf("expected checked_out, got %s", updated.Status)
	}
}

// racingRepository lands a checkout between the service's read of an item and
// its subsequent write, the window where a stale row snapshot would erase the
// movement.
type racingRepository struct {
	*fakeRepository
	raced bool
}

func (r *racingRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	item, err := r.fakeRepository.FindByID(ctx, id)
	if err == nil && !r.raced {
		r.raced = true
		if _, err := r.fakeRepository.ConditionalDecrement(ctx, id, 5); err != nil {
			return nil, err
		}
	}
	return item, err
}

func TestUpdateKeepsConcurrentStockMovement(t *testing.T) {
	t.Parallel()

	repo := &racingRepository{fakeRepository: newFakeRepository()}
	svc, err := NewService(repo, nil, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateItemInput{Name: "Projector", SKU: "S-9", Quantity: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// five units go out while the rename is in flight
	name := "Projector (cart B)"
	updated, err := svc.Update(ctx, item.ID, UpdateItemInput{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.Quantity != 5 {
		t.Fatalf("metadata edit rewrote quantity: got %d, the ledger says 5 went out", updated.Quantity)
	}
	if updated.Status != enums.ItemStatusAvailable {
		t.Fatalf("metadata edit changed status: %s", updated.Status)
	}
}

func TestDeleteBlockedByTransactionHistory(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateItemInput{Name: "Printer", SKU: "S-5", Quantity: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.transactions[item.ID] = true

	if err := svc.Delete(ctx, item.ID); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	repo.transactions[item.ID] = false
	if err := svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, item.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetireIsIdempotentConflict(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateItemInput{Name: "Scanner", SKU: "S-6", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.ConditionalDecrement(ctx, item.ID, 1); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	retired, err := svc.Retire(ctx, item.ID)
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if retired.Status != enums.ItemStatusRetired {
		t.Fatalf("expected retired, got %s", retired.Status)
	}
	if retired.Quantity != 1 {
		t.Fatalf("retire touched quantity: %d", retired.Quantity)
	}

	if _, err := svc.Retire(ctx, item.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second retire, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
