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

	"github.com/meridian-fin/meridian-fin/internal/access"
	"github.com/meridian-fin/meridian-fin/internal/aggregation"
	aggregationhttp "github.com/meridian-fin/meridian-fin/internal/aggregation/http"
	"github.com/meridian-fin/meridian-fin/internal/app"
	"github.com/meridian-fin/meridian-fin/internal/auth"
	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/notify"
	"github.com/meridian-fin/meridian-fin/internal/observability"
	"github.com/meridian-fin/meridian-fin/internal/platform/cache"
	"github.com/meridian-fin/meridian-fin/internal/platform/db"
	"github.com/meridian-fin/meridian-fin/internal/shared"
	"github.com/meridian-fin/meridian-fin/internal/workflow"
	workflowhttp "github.com/meridian-fin/meridian-fin/internal/workflow/http"
	"github.com/meridian-fin/meridian-fin/jobs"
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

	// Sessions and caches live in Redis; there is no degraded mode.
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

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	accessCfg := access.Config{}
	for _, role := range cfg.GlobalRoles {
		accessCfg.GlobalRoles = append(accessCfg.GlobalRoles, access.RoleKind(role))
	}
	resolver := access.NewResolver(access.NewRepository(pool), accessCfg)

	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, resolver, sessionManager)

	directoryService := directory.NewService(directory.NewRepository(pool), resolver, auditLogger, logger)
	directoryHandler := directory.NewHandler(logger, directoryService)

	factsRepo := facts.NewRepository(pool)
	factsService := facts.NewService(factsRepo, resolver, auditLogger, logger)
	factsHandler := facts.NewHandler(logger, factsService)

	workflowService := workflow.NewService(
		workflow.NewRepository(pool),
		resolver,
		workflow.NewFactSource(factsRepo),
		auditLogger,
		logger,
	)
	// Report state drives whether ACTUAL facts stay editable.
	factsService.BindGate(workflowService)

	emailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := emailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	notifyRepo := notify.NewRepository(pool)
	dispatcher := notify.NewDispatcher(notifyRepo, emailClient, logger)
	notifyHandler := notify.NewHandler(logger, notify.NewService(notifyRepo, logger))

	workflowHandler := workflowhttp.NewHandler(logger, workflowService, dispatcher, metrics)

	aggregationCache := aggregation.NewCache(redisClient, cfg.AggregationCacheTTL)
	if err := aggregationCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("aggregation cache invalidation listener", slog.Any("error", err))
	}
	// Fact writes change every cached summary.
	factsService.BindInvalidator(aggregationCache)
	aggregationService := aggregation.NewService(aggregation.NewRepository(pool), resolver, aggregationCache, logger)
	aggregationHandler := aggregationhttp.NewHandler(logger, aggregationService)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		DirectoryHandler:   directoryHandler,
		FactsHandler:       factsHandler,
		WorkflowHandler:    workflowHandler,
		AggregationHandler: aggregationHandler,
		NotifyHandler:      notifyHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
