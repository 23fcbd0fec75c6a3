package metrics

import "github.com/prometheus/client_golang/prometheus"

// StockMetrics tracks the reconciliation health of the stock engine: how often
// the item/ledger write pair diverges, how repairs go, and how many
// transactions are rejected for insufficient stock.
type StockMetrics struct {
	repairAttempts    *prometheus.CounterVec
	tasksQueued       prometheus.Counter
	tasksResolved     prometheus.Counter
	insufficientStock prometheus.Counter
}

// NewStockMetrics registers the stock engine metrics on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	repairAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_repair_attempts",
		Help: "Inline repair attempts after a failed item/ledger write pair.",
	}, []string{"outcome"})
	tasksQueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_reconciliation_tasks_queued",
		Help: "Reconciliation tasks queued for operator attention.",
	})
	tasksResolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_reconciliation_tasks_resolved",
		Help: "Reconciliation tasks resolved by retry or operator action.",
	})
	insufficientStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_insufficient_rejections",
		Help: "Transactions rejected because requested quantity exceeded stock.",
	})
	reg.MustRegister(repairAttempts, tasksQueued, tasksResolved, insufficientStock)
	return &StockMetrics{
		repairAttempts:    repairAttempts,
		tasksQueued:       tasksQueued,
		tasksResolved:     tasksResolved,
		insufficientStock: insufficientStock,
	}
}

// IncRepairAttempt records one inline repair attempt with its outcome.
func (s *StockMetrics) IncRepairAttempt(outcome string) {
	if s == nil || s.repairAttempts == nil {
		return
	}
	s.repairAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTaskQueued counts a reconciliation task handed off to operators.
func (s *StockMetrics) IncTaskQueued() {
	if s == nil || s.tasksQueued == nil {
		return
	}
	s.tasksQueued.Inc()
}

// IncTaskResolved counts a reconciliation task closed out.
func (s *StockMetrics) IncTaskResolved() {
	if s == nil || s.tasksResolved == nil {
		return
	}
	s.tasksResolved.Inc()
}

// IncInsufficientStock counts a rejected over-quantity request.
func (s *StockMetrics) IncInsufficientStock() {
	if s == nil || s.insufficientStock == nil {
		return
	}
	s.insufficientStock.Inc()
}
