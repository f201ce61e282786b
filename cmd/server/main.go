package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopmargin/backend/internal/application/profit"
	"github.com/shopmargin/backend/internal/application/reconcile"
	"github.com/shopmargin/backend/internal/domain/shared"
	syncdomain "github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/cache"
	"github.com/shopmargin/backend/internal/infrastructure/config"
	"github.com/shopmargin/backend/internal/infrastructure/event"
	"github.com/shopmargin/backend/internal/infrastructure/logger"
	"github.com/shopmargin/backend/internal/infrastructure/persistence"
	"github.com/shopmargin/backend/internal/infrastructure/scheduler"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
	"github.com/shopmargin/backend/internal/interfaces/http/handler"
	"github.com/shopmargin/backend/internal/interfaces/http/middleware"
	"github.com/shopmargin/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ShopMargin backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	merchantRepo := persistence.NewGormMerchantRepository(db.DB)
	settingsRepo := persistence.NewGormSettingsRepository(db.DB)
	catalogRepo := persistence.NewGormCatalogRepository(db.DB)
	costRepo := persistence.NewGormCostRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	runRepo := persistence.NewGormSyncRunRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Outbox plumbing: runs and their outcome events commit together,
	// the processor sweeps them to the broker afterwards
	serializer := event.NewEventSerializer()
	recorder := event.NewRecorder(db.DB, outboxRepo, serializer)

	publisher := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Error closing kafka writer", zap.Error(err))
		}
	}()

	// Shopify clients, per merchant on top of configured defaults
	registry := shopify.NewRegistry(shopify.Config{
		StoreDomain:  cfg.Shopify.StoreName,
		AccessToken:  cfg.Shopify.AccessToken,
		APIVersion:   cfg.Shopify.APIVersion,
		PageSize:     cfg.Shopify.PageSize,
		Timeout:      cfg.Shopify.FetchTimeout,
		MaxRetries:   cfg.Shopify.MaxRetries,
		RetryBackoff: cfg.Shopify.RetryBackoff,
	})

	// Application services
	catalogReconciler := reconcile.NewCatalogReconciler(catalogRepo, costRepo, log)
	orderReconciler := reconcile.NewOrderReconciler(orderRepo, log)
	calculator := profit.NewCalculator(orderRepo, catalogRepo, costRepo, nil, log)

	// Cross-instance sync lock; absent Redis degrades to in-process
	// single-flight only
	var lock scheduler.SyncLock
	redisLock, err := cache.NewRedisSyncLock(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, cross-instance sync lock disabled", zap.Error(err))
	} else {
		lock = redisLock
		defer func() {
			if err := redisLock.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
	}

	sched, err := scheduler.NewScheduler(
		scheduler.Config{
			Workers:    cfg.Scheduler.Workers,
			QueueSize:  cfg.Scheduler.QueueSize,
			RunTimeout: cfg.Scheduler.RunTimeout,
		},
		merchantRepo,
		settingsRepo,
		runRepo,
		scheduler.NewRegistryResolver(registry),
		catalogReconciler,
		orderReconciler,
		calculator,
		recorder,
		lock,
		log,
	)
	if err != nil {
		log.Fatal("Failed to build scheduler", zap.Error(err))
	}

	ctx := context.Background()

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()

		cronTrigger := scheduler.NewCronTrigger(
			scheduler.CronTriggerConfig{
				CheckInterval:   cfg.Scheduler.CronCheckInterval,
				RefreshInterval: cfg.Scheduler.SettingsRefreshEach,
			},
			sched,
			merchantRepo,
			settingsRepo,
			log,
		)
		if err := cronTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start cron trigger", zap.Error(err))
		}
		defer func() {
			if err := cronTrigger.Stop(ctx); err != nil {
				log.Error("Error stopping cron trigger", zap.Error(err))
			}
		}()
		log.Info("Sync scheduler started",
			zap.Int("workers", cfg.Scheduler.Workers),
			zap.Duration("run_timeout", cfg.Scheduler.RunTimeout),
		)
	}

	if cfg.Event.ProcessorEnabled {
		processor := event.NewOutboxProcessor(outboxRepo, publisher, event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
			CleanupInterval:  time.Hour,
		}, log)
		// Delivered run outcomes flip the run's published flag
		processor.OnSent(func(ctx context.Context, entry *shared.OutboxEntry) {
			if entry.EventType != syncdomain.EventTypeRunCompleted {
				return
			}
			if err := runRepo.MarkPublished(ctx, entry.AggregateID); err != nil {
				log.Warn("Failed to mark run published",
					zap.String("run_id", entry.AggregateID.String()),
					zap.Error(err),
				)
			}
		})
		if err := processor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := processor.Stop(ctx); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", cfg.Event.BatchSize),
			zap.Duration("poll_interval", cfg.Event.PollInterval),
		)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	healthHandler := handler.NewHealthHandler(db, sched)
	engine.GET("/health", healthHandler.Check)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewSyncHandler(sched, runRepo))
	r.Register(handler.NewMarginHandler(merchantRepo, settingsRepo, calculator))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
}
