package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuskit/schoolstock-backend/api/controllers"
	"github.com/campuskit/schoolstock-backend/api/middleware"
	"github.com/campuskit/schoolstock-backend/internal/catalog"
	"github.com/campuskit/schoolstock-backend/internal/dashboard"
	"github.com/campuskit/schoolstock-backend/internal/items"
	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/internal/stock"
	"github.com/campuskit/schoolstock-backend/pkg/config"
	"github.com/campuskit/schoolstock-backend/pkg/db"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/redis"
)

// RouterParams collects everything the HTTP surface depends on. Redis and
// the metrics gatherer are optional; the matching middleware and endpoint
// degrade to no-ops when absent.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Gatherer  prometheus.Gatherer
	UserSync  middleware.UserSyncer
	Items     items.Service
	Ledger    ledger.Service
	Stock     stock.Engine
	Catalog   catalog.Service
	Dashboard dashboard.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisPinger redis.Pinger
	if p.Redis != nil {
		redisPinger = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPinger))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.UserSync, logg))
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, logg))
			r.Use(middleware.RateLimit(cfg.RateLimit, p.Redis, logg))
		}

		r.Route("/items", func(r chi.Router) {
			r.Get("/", controllers.ListItems(p.Items, logg))
			r.Post("/", controllers.CreateItem(p.Items, logg))
			r.Get("/{itemId}", controllers.GetItem(p.Items, logg))
			r.Patch("/{itemId}", controllers.UpdateItem(p.Items, logg))
			r.Delete("/{itemId}", controllers.DeleteItem(p.Items, logg))
			r.Post("/{itemId}/adjust", controllers.AdjustItem(p.Stock, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", controllers.ListTransactions(p.Ledger, logg))
			r.Post("/issue", controllers.IssueTransaction(p.Stock, logg))
			r.Get("/{txId}", controllers.GetTransaction(p.Ledger, logg))
			r.Post("/{txId}/return", controllers.ReturnTransaction(p.Stock, logg))
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", controllers.ListCategories(p.Catalog, logg))
			r.Post("/", controllers.CreateCategory(p.Catalog, logg))
			r.Patch("/{categoryId}", controllers.UpdateCategory(p.Catalog, logg))
			r.Delete("/{categoryId}", controllers.DeleteCategory(p.Catalog, logg))
		})

		r.Route("/areas", func(r chi.Router) {
			r.Get("/", controllers.ListAreas(p.Catalog, logg))
			r.Post("/", controllers.CreateArea(p.Catalog, logg))
			r.Patch("/{areaId}", controllers.UpdateArea(p.Catalog, logg))
			r.Delete("/{areaId}", controllers.DeleteArea(p.Catalog, logg))
		})

		r.Get("/dashboard/summary", controllers.DashboardSummary(p.Dashboard, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.UserSync, logg))
		r.Use(middleware.RequireRole(logg, string(enums.UserRoleAdmin)))
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, logg))
			r.Use(middleware.RateLimit(cfg.RateLimit, p.Redis, logg))
		}

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/", controllers.AdminListReconciliationTasks(p.Stock, logg))
			r.Post("/{taskId}/retry", controllers.AdminRetryReconciliationTask(p.Stock, logg))
		})
	})

	return r
}
