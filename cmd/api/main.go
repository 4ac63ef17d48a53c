package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/itasset/ticket-workflow/internal/api/http"
	"github.com/itasset/ticket-workflow/internal/api/http/handlers"
	"github.com/itasset/ticket-workflow/internal/auth"
	"github.com/itasset/ticket-workflow/internal/broker"
	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/config"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/events"
	"github.com/itasset/ticket-workflow/internal/observability"
	"github.com/itasset/ticket-workflow/internal/persistence"
	"github.com/itasset/ticket-workflow/internal/repository"
	"github.com/itasset/ticket-workflow/internal/repository/memory"
	"github.com/itasset/ticket-workflow/internal/service"
	"github.com/itasset/ticket-workflow/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store repository.Store
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations || *migrateOnly {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not provided; using in-memory store")
		store = memory.NewStore()
	}
	if *migrateOnly {
		logger.Info("migrations applied")
		return
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		notifier service.Notifier
		sla      service.SLAClient
	)
	if redis.Enabled() {
		notifier = broker.NewRedisNotifier(redis.Client, cfg.Notification.Stream)
		sla = broker.NewRedisSLAClient(redis.Client, cfg.Notification.SLAStream)
	} else {
		notifier = broker.NewLogNotifier(logger)
		sla = broker.NewLogSLAClient(logger)
	}

	metrics := observability.NewMetrics()
	clk := clock.Real()
	dispatcher := events.NewAsyncDispatcher(cfg.Notification.Workers, cfg.Notification.QueueSize, logger)

	configs := service.NewReopenConfigService(store.ReopenConfigs(), cfg.Workflow.ReopenDefaults, clk, logger)
	workflow := service.NewWorkflowService(service.WorkflowDependencies{
		Store:                store,
		Configs:              configs,
		Repairs:              service.NewRepairLinker(store.RepairRecords(), clk, metrics),
		SLA:                  sla,
		Dispatcher:           dispatcher,
		Clock:                clk,
		Logger:               logger,
		Metrics:              metrics,
		RequireServiceReport: cfg.Workflow.RequireServiceReport,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
		Metrics:    metrics,
	})
	authService := service.NewAuthService(cfg.Auth, store.Staff())

	notifications := service.NewNotificationService(dispatcher, notifier, store.Staff(), logger, metrics)
	worker.StartNotificationWorker(dispatcher, notifications, metrics)

	if cfg.Auth.BootstrapAdminEmail != "" && cfg.Auth.BootstrapAdminPassword != "" {
		admin, err := authService.EnsureStaff(ctx, "Administrator", cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword, domain.StaffRoleAdmin)
		if err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		logger.Info("bootstrap admin ready", zap.String("staff_id", admin.ID))
	}

	deps := map[string]handlers.Pinger{"store": store}
	if redis.Enabled() {
		deps["redis"] = redis
	}

	app := httptransport.NewApp(cfg.App.Name, logger, metrics, cfg.App.RequestTimeout(), httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Workflow:       handlers.NewWorkflowHandler(workflow),
		ReopenConfig:   handlers.NewReopenConfigHandler(configs),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Staff()),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	worker.StopNotificationWorker(shutdownCtx, dispatcher, logger)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
