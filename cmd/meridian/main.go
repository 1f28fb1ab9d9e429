package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-ims/meridian-ims/internal/app"
	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/invoicing"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/observability"
	"github.com/meridian-ims/meridian-ims/internal/platform/cache"
	"github.com/meridian-ims/meridian-ims/internal/platform/db"
	"github.com/meridian-ims/meridian-ims/internal/purchasing"
	"github.com/meridian-ims/meridian-ims/internal/rbac"
	"github.com/meridian-ims/meridian-ims/internal/sales"
	"github.com/meridian-ims/meridian-ims/internal/shared"
	"github.com/meridian-ims/meridian-ims/internal/users"
	"github.com/meridian-ims/meridian-ims/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	permCache := rbac.NewPermissionCache(redisClient, cfg.RBACPermCacheTTL)
	rbacService := rbac.NewService(pool, permCache, logger, rbac.Config{
		LegacyAdminFallback: cfg.RBACLegacyAdminFallback,
	})
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService)

	usersService := users.NewService(users.NewRepository(pool))
	usersHandler := users.NewHandler(logger, usersService)

	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger)
	ledgerService.SetMovementObserver(metrics.ObserveStockMovement)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), ledgerService, rbacService, auditLogger, idempotencyStore)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	salesService := sales.NewService(sales.NewRepository(pool), ledgerService, rbacService, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	invoicingService := invoicing.NewService(invoicing.NewRepository(pool), salesService, rbacService, auditLogger)
	invoicingHandler := invoicing.NewHandler(logger, invoicingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CatalogHandler:    catalogHandler,
		LedgerHandler:     ledgerHandler,
		PurchasingHandler: purchasingHandler,
		SalesHandler:      salesHandler,
		InvoicingHandler:  invoicingHandler,
		UsersHandler:      usersHandler,
		RBACHandler:       rbacHandler,
		JobsHandler:       jobsHandler,
		Pool:              pool,
		RBACMiddleware:    rbacMiddleware,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
