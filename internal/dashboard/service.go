package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
)

// Summary is a point-in-time snapshot for the operations dashboard. All
// figures are computed at read time from items and the transaction ledger.
type Summary struct {
	TotalItems       int64                      `json:"totalItems"`
	ItemsByStatus    map[enums.ItemStatus]int64 `json:"itemsByStatus"`
	LowStockCount    int64                      `json:"lowStockCount"`
	OutstandingLoans int64                      `json:"outstandingLoans"`
	OverdueLoans     int64                      `json:"overdueLoans"`
	TotalStockValue  decimal.Decimal            `json:"totalStockValue"`
	GeneratedAt      time.Time                  `json:"generatedAt"`
}

// Service produces dashboard summaries.
type Service interface {
	Summary(ctx context.Context) (*Summary, error)
}

type service struct {
	repo   Repository
	ledger ledger.Repository
	now    func() time.Time
}

// NewService wires a dashboard service over the aggregate repository and
// the transaction ledger.
func NewService(repo Repository, ledgerRepo ledger.Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("dashboard repository required")
	}
	if ledgerRepo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &service{repo: repo, ledger: ledgerRepo, now: time.Now}, nil
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	byStatus, err := s.repo.CountItemsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting items by status")
	}

	var total int64
	for _, count := range byStatus {
		total += count
	}

	lowStock, err := s.repo.CountLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting low stock items")
	}

	outstanding, err := s.repo.CountPendingByType(ctx, enums.TransactionTypeIssue)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting outstanding loans")
	}

	asOf := s.now().UTC()
	overdue, err := s.ledger.CountPendingOverdue(ctx, asOf)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting overdue loans")
	}

	value, err := s.repo.SumStockValue(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summing stock value")
	}

	return &Summary{
		TotalItems:       total,
		ItemsByStatus:    byStatus,
		LowStockCount:    lowStock,
		OutstandingLoans: outstanding,
		OverdueLoans:     overdue,
		TotalStockValue:  value,
		GeneratedAt:      asOf,
	}, nil
}
