package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/campuskit/schoolstock-backend/api/routes"
	"github.com/campuskit/schoolstock-backend/internal/catalog"
	"github.com/campuskit/schoolstock-backend/internal/cron"
	"github.com/campuskit/schoolstock-backend/internal/dashboard"
	"github.com/campuskit/schoolstock-backend/internal/items"
	"github.com/campuskit/schoolstock-backend/internal/ledger"
	"github.com/campuskit/schoolstock-backend/internal/stock"
	"github.com/campuskit/schoolstock-backend/internal/users"
	"github.com/campuskit/schoolstock-backend/pkg/config"
	"github.com/campuskit/schoolstock-backend/pkg/db"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
	"github.com/campuskit/schoolstock-backend/pkg/metrics"
	"github.com/campuskit/schoolstock-backend/pkg/migrate"
	"github.com/campuskit/schoolstock-backend/pkg/pubsub"
	"github.com/campuskit/schoolstock-backend/pkg/redis"
)

const (
	cronLockKeyFormat = "ss:cron:lock:%s"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// The item-change feed is optional; without a topic the engine simply
	// skips publishing and clients poll.
	var publisher *pubsub.Client
	if cfg.PubSub.ItemEventsTopic != "" {
		publisher, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	stockMetrics := metrics.NewStockMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	itemRepo := items.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	taskRepo := stock.NewTaskRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())
	dashboardRepo := dashboard.NewRepository(dbClient.DB())

	itemService, err := items.NewService(itemRepo, dbClient, logg)
	requireService(logg, "items service", err)

	ledgerService, err := ledger.NewService(ledgerRepo)
	requireService(logg, "ledger service", err)

	catalogService, err := catalog.NewService(catalogRepo, dbClient)
	requireService(logg, "catalog service", err)

	userService, err := users.NewService(userRepo)
	requireService(logg, "user service", err)

	dashboardService, err := dashboard.NewService(dashboardRepo, ledgerRepo)
	requireService(logg, "dashboard service", err)

	engineParams := stock.Params{
		Items:   itemRepo,
		Ledger:  ledgerRepo,
		Tasks:   taskRepo,
		Tx:      dbClient,
		Logger:  logg,
		Metrics: stockMetrics,
		Config:  cfg.Stock,
	}
	if publisher != nil {
		engineParams.Publisher = publisher
	}
	engine, err := stock.NewEngine(engineParams)
	requireService(logg, "stock engine", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cronService, err := buildCronService(cfg, logg, cronMetrics, redisClient, ledgerRepo, dashboardRepo, taskRepo)
	requireService(logg, "cron service", err)
	go func() {
		if err := cronService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "cron loop stopped unexpectedly", err)
		}
	}()

	handler := routes.NewRouter(routes.RouterParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Gatherer:  registry,
		UserSync:  userService,
		Items:     itemService,
		Ledger:    ledgerService,
		Stock:     engine,
		Catalog:   catalogService,
		Dashboard: dashboardService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during shutdown", err)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}

func buildCronService(
	cfg *config.Config,
	logg *logger.Logger,
	cronMetrics *metrics.CronJobMetrics,
	redisClient *redis.Client,
	ledgerRepo ledger.Repository,
	dashboardRepo dashboard.Repository,
	taskRepo stock.TaskRepository,
) (*cron.Service, error) {
	overdueJob, err := cron.NewOverdueScanJob(cron.OverdueScanJobParams{
		Logger:    logg,
		Ledger:    ledgerRepo,
		Dashboard: dashboardRepo,
	})
	if err != nil {
		return nil, err
	}

	backlogJob, err := cron.NewReconciliationBacklogJob(cron.ReconciliationBacklogJobParams{
		Logger: logg,
		Tasks:  taskRepo,
	})
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, cronLockKey(cfg.App.Env), 0)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(overdueJob, backlogJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
}

func cronLockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(cronLockKeyFormat, env)
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("failed to create %s", name), err)
	os.Exit(1)
}
