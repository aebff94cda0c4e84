package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/xQBCx/biz-dev-app-firebase-sub001/api/handler"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/config"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/buffer"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/locker"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/monitor"
	pgInfra "github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/postgres"
	redisInfra "github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/redis"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/metrics"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/middleware"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/router"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/services"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/services/lifecycle"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/logger"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository/memory"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository/postgres"
	redisRepo "github.com/xQBCx/biz-dev-app-firebase-sub001/repository/redis"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	attributionUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/attribution"
	dealUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/deal"
	formulationUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/formulation"
	ingredientUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ingredient"
	ledgerUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ledger"
	proposalUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/proposal"
	settlementUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(appCtx, cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	// Storage
	var (
		repos repository.Registry
		pool  *pgxpool.Pool
	)
	switch cfg.Engine.StorageDriver {
	case config.StorageMemory:
		repos = memory.NewRepositories(memory.NewStore())
		zapLogger.Warn("using in-memory storage; state is lost on restart")
	default:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err = pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		repos = postgres.NewRepositories(pool, zapLogger)
	}

	var redisClient *goRedis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	// Coordination
	var lock usecase.Locker = locker.NewLocal()
	if cfg.Lock.Driver == config.LockRedis {
		lock = locker.NewRedis(redisClient, cfg.Lock.TTL, cfg.Lock.Retry, zapLogger)
	}

	var publisher usecase.EventPublisher = services.NewLogPublisher(zapLogger)
	var directory usecase.ParticipantDirectory = memory.StaticDirectory(cfg.Engine.Participants)
	if redisClient != nil {
		publisher = redisRepo.NewEventPublisher(redisClient, cfg.Engine.EventChannel, 0)
		directory = redisRepo.NewParticipantDirectory(redisClient, directory)
	}
	emitter := usecase.NewEmitter(repos.Events, publisher, zapLogger)
	collector := metrics.New()

	// Use cases
	dealUseCase := dealUC.New(repos.Deals, lock, directory, cfg.Engine.DefaultCurrency, zapLogger)
	ingredientUseCase := ingredientUC.New(repos, lock, zapLogger)
	formulationUseCase := formulationUC.New(repos, lock, emitter, formulationUC.Options{
		AllowDraftActivation: cfg.Engine.AllowDraftActivation,
	}, zapLogger)
	attributionUseCase := attributionUC.New(repos, lock, zapLogger)
	proposalUseCase, err := proposalUC.New(repos, lock, emitter, collector, formulationUseCase, attributionUseCase, proposalUC.Options{
		AllowRevote: cfg.Engine.AllowRevote,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("proposal use case", zap.Error(err))
	}
	ledgerUseCase := ledgerUC.New(repos, lock, emitter, collector, zapLogger)
	settlementUseCase, err := settlementUC.New(repos, lock, emitter, collector, zapLogger)
	if err != nil {
		zapLogger.Fatal("settlement use case", zap.Error(err))
	}
	ledgerUseCase.Subscribe(settlementUseCase)

	dispatcher := usecase.NewDispatcher()
	ledgerUseCase.Register(dispatcher)

	// Usage inbox
	inbox, err := buffer.Open(cfg.Buffer.Path)
	if err != nil {
		zapLogger.Fatal("failed to open usage inbox", zap.Error(err))
	}
	manager.Register("inbox", func(ctx context.Context) error {
		return inbox.Close()
	})

	mon := monitor.New(monitor.PostgresProbe(pool), monitor.RedisProbe(redisClient), inbox, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	processor := services.NewBufferProcessor(inbox, mon, dispatcher, zapLogger, services.ProcessorConfig{
		Interval:      cfg.Buffer.SyncInterval,
		BatchSize:     cfg.Buffer.BatchSize,
		MaxRetries:    cfg.Buffer.MaxRetry,
		DeadRetention: time.Duration(cfg.Buffer.DeadRetentionHours) * time.Hour,
	})
	processor.Start()
	manager.Register("inbox_processor", func(ctx context.Context) error {
		processor.Stop(ctx)
		return nil
	})
	collector.WatchInbox(processor)
	bridge := services.NewBufferBridge(processor)

	if cfg.Scheduler.Enabled {
		scheduler := services.NewSettlementScheduler(settlementUseCase, cfg.Scheduler.Refresh, cfg.Scheduler.Timeout, zapLogger)
		if err := scheduler.Start(appCtx); err != nil {
			zapLogger.Fatal("settlement scheduler", zap.Error(err))
		}
		manager.Register("settlement_scheduler", func(ctx context.Context) error {
			scheduler.Stop(ctx)
			return nil
		})
	}

	// HTTP
	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	handlers := router.Handlers{
		Deal:        apiHandler.NewDealHandler(dealUseCase, ctxAdapter, zapLogger),
		Ingredient:  apiHandler.NewIngredientHandler(ingredientUseCase, dealUseCase, ctxAdapter, zapLogger),
		Formulation: apiHandler.NewFormulationHandler(formulationUseCase, dealUseCase, ctxAdapter, zapLogger),
		Rule:        apiHandler.NewRuleHandler(attributionUseCase, formulationUseCase, dealUseCase, ctxAdapter, zapLogger),
		Proposal:    apiHandler.NewProposalHandler(proposalUseCase, dealUseCase, ctxAdapter, zapLogger),
		Ledger:      apiHandler.NewLedgerHandler(ledgerUseCase, bridge, dealUseCase, ctxAdapter, zapLogger),
		Settlement:  apiHandler.NewSettlementHandler(settlementUseCase, dealUseCase, ctxAdapter, zapLogger),
		Health:      apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = collector.Handler()
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware, router.Options{EnablePprof: cfg.HTTP.EnablePprof})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func(ctx context.Context) error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-manager.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
	if err := manager.Wait(); err != nil {
		zapLogger.Error("component failed", zap.Error(err))
	}
}
