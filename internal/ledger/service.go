package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/pagination"
)

// TransactionView is a ledger entry with its derived overdue flag attached.
type TransactionView struct {
	models.InventoryTransaction
	Overdue bool `json:"overdue"`
}

// Query is the caller-facing listing input. OverdueOnly is resolved against
// the clock at query time; overdue is never a stored status.
type Query struct {
	Pagination  pagination.Params
	ItemID      *uuid.UUID
	Type        *enums.TransactionType
	Status      *enums.TransactionStatus
	IssuedBy    *uuid.UUID
	OverdueOnly bool
}

// Service is the read side of the ledger. Writes happen only through the
// stock engine, which owns the paired item update.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*TransactionView, error)
	List(ctx context.Context, query Query) ([]TransactionView, string, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger read service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*TransactionView, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading transaction")
	}
	view := s.toView(*entry)
	return &view, nil
}

func (s *service) List(ctx context.Context, query Query) ([]TransactionView, string, error) {
	repoQuery := ListQuery{
		Pagination: query.Pagination,
		Filters: ListFilters{
			ItemID:   query.ItemID,
			Type:     query.Type,
			Status:   query.Status,
			IssuedBy: query.IssuedBy,
		},
	}
	if query.OverdueOnly {
		asOf := s.now()
		repoQuery.Filters.OverdueAsOf = &asOf
	}

	result, err := s.repo.List(ctx, repoQuery)
	if err != nil {
		return nil, "", err
	}

	views := make([]TransactionView, 0, len(result.Transactions))
	for _, entry := range result.Transactions {
		views = append(views, s.toView(entry))
	}
	return views, result.NextCursor, nil
}

func (s *service) toView(entry models.InventoryTransaction) TransactionView {
	return TransactionView{
		InventoryTransaction: entry,
		Overdue:              entry.IsOverdue(s.now()),
	}
}
