package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/campuskit/schoolstock-backend/internal/dashboard"
	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/pagination"
)

const overdueScanPageSize = 100

// OverdueScanJobParams configure the overdue loan scan.
type OverdueScanJobParams struct {
	Logger    *logger.Logger
	Ledger    ledger.Repository
	Dashboard dashboard.Repository
}

// NewOverdueScanJob builds the job that surfaces overdue loans and low
// stock levels. The scan only reads; overdue and low-stock are derived
// states and are never written back to the database.
func NewOverdueScanJob(params OverdueScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Dashboard == nil {
		return nil, fmt.Errorf("dashboard repository required")
	}
	return &overdueScanJob{
		logg:      params.Logger,
		ledger:    params.Ledger,
		dashboard: params.Dashboard,
		now:       time.Now,
	}, nil
}

type overdueScanJob struct {
	logg      *logger.Logger
	ledger    ledger.Repository
	dashboard dashboard.Repository
	now       func() time.Time
}

func (j *overdueScanJob) Name() string { return "overdue-scan" }

func (j *overdueScanJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.scanOverdueLoans(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.reportLowStock(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *overdueScanJob) scanOverdueLoans(ctx context.Context) error {
	asOf := j.now().UTC()
	cursor := ""
	count := 0
	for {
		page, err := j.ledger.List(ctx, ledger.ListQuery{
			Pagination: pagination.Params{Limit: overdueScanPageSize, Cursor: cursor},
			Filters:    ledger.ListFilters{OverdueAsOf: &asOf},
		})
		if err != nil {
			return fmt.Errorf("list overdue loans: %w", err)
		}
		for _, entry := range page.Transactions {
			entryCtx := j.logg.WithFields(ctx, map[string]any{
				"transaction_id": entry.ID.String(),
				"item_id":        entry.ItemID.String(),
				"recipient":      entry.RecipientName,
				"due":            entry.ExpectedReturnDate,
			})
			j.logg.Warn(entryCtx, "loan is overdue")
			count++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "overdue loan scan complete")
	return nil
}

func (j *overdueScanJob) reportLowStock(ctx context.Context) error {
	count, err := j.dashboard.CountLowStock(ctx)
	if err != nil {
		return fmt.Errorf("count low stock: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	if count > 0 {
		j.logg.Warn(logCtx, "items at or below minimum stock level")
		return nil
	}
	j.logg.Info(logCtx, "no items below minimum stock level")
	return nil
}
