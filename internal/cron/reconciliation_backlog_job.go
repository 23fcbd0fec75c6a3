package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/campuskit/schoolstock-backend/internal/stock"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

const backlogListLimit = 50

// ReconciliationBacklogJobParams configure the backlog report.
type ReconciliationBacklogJobParams struct {
	Logger *logger.Logger
	Tasks  stock.TaskRepository
	// WarnAfter is how long a task may sit unresolved before the job
	// escalates it in the logs.
	WarnAfter time.Duration
}

// NewReconciliationBacklogJob builds the job that reports unresolved
// reconciliation tasks. Replays stay an explicit operator action through
// the admin API; the job never retries on its own.
func NewReconciliationBacklogJob(params ReconciliationBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("task repository required")
	}
	warnAfter := params.WarnAfter
	if warnAfter <= 0 {
		warnAfter = 30 * time.Minute
	}
	return &reconciliationBacklogJob{
		logg:      params.Logger,
		tasks:     params.Tasks,
		warnAfter: warnAfter,
		now:       time.Now,
	}, nil
}

type reconciliationBacklogJob struct {
	logg      *logger.Logger
	tasks     stock.TaskRepository
	warnAfter time.Duration
	now       func() time.Time
}

func (j *reconciliationBacklogJob) Name() string { return "reconciliation-backlog" }

func (j *reconciliationBacklogJob) Run(ctx context.Context) error {
	unresolved, err := j.tasks.ListUnresolved(ctx, backlogListLimit)
	if err != nil {
		return fmt.Errorf("list unresolved tasks: %w", err)
	}

	stale := 0
	cutoff := j.now().UTC().Add(-j.warnAfter)
	for _, task := range unresolved {
		if !task.CreatedAt.Before(cutoff) {
			continue
		}
		taskCtx := j.logg.WithFields(ctx, map[string]any{
			"task_id":        task.ID.String(),
			"transaction_id": task.TransactionID.String(),
			"item_id":        task.ItemID.String(),
			"direction":      task.Direction,
			"attempts":       task.Attempts,
			"age_minutes":    int(j.now().UTC().Sub(task.CreatedAt).Minutes()),
		})
		j.logg.Warn(taskCtx, "reconciliation task awaiting operator replay")
		stale++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"unresolved": len(unresolved),
		"stale":      stale,
	})
	j.logg.Info(logCtx, "reconciliation backlog report complete")
	return nil
}
