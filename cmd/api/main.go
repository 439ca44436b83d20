package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/facility-desk/internal/api/http"
	"github.com/spec-kit/facility-desk/internal/api/http/handlers"
	"github.com/spec-kit/facility-desk/internal/auth"
	"github.com/spec-kit/facility-desk/internal/config"
	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/observability"
	"github.com/spec-kit/facility-desk/internal/persistence"
	"github.com/spec-kit/facility-desk/internal/queue"
	"github.com/spec-kit/facility-desk/internal/repository"
	"github.com/spec-kit/facility-desk/internal/service"
	"github.com/spec-kit/facility-desk/internal/worker"
)

// maxFilesPerRequest bounds the multipart body size together with the per-file limit.
const maxFilesPerRequest = 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.App.Name, cfg.App.Version, cfg.Telemetry, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	objects, err := persistence.NewObjectStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to connect object storage", zap.Error(err))
	}

	notificationQueue := queue.NewRedisQueue(redis.Client, cfg.Notification.QueueKey, logger)
	if n, err := notificationQueue.Recover(ctx); err != nil {
		logger.Warn("failed to recover in-flight notification jobs", zap.Error(err))
	} else if n > 0 {
		logger.Info("requeued in-flight notification jobs", zap.Int("count", n))
	}

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	officeRepo := repository.NewOfficeRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	historyRepo := repository.NewRequestHistoryRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: notificationRepo,
		Queue:            notificationQueue,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	notificationService.RegisterHandlers()

	attachmentService := service.NewAttachmentService(service.AttachmentDependencies{
		Objects:        objects,
		AttachmentRepo: attachmentRepo,
		RequestRepo:    requestRepo,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		PublicBaseURL:  cfg.App.PublicBaseURL,
		Logger:         logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		UserRepo:    userRepo,
		RequestRepo: requestRepo,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo: requestRepo,
		HistoryRepo: historyRepo,
		OfficeRepo:  officeRepo,
		Attachments: attachmentService,
		Assignment:  assignmentService,
		Logger:      logger,
	})
	userService := service.NewUserService(userRepo, attachmentService, logger)
	officeFilterService := service.NewOfficeFilterService(officeRepo)
	authService, err := service.NewAuthService(cfg.Auth, userRepo)
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)
	notificationWorker := worker.NewNotificationWorker(notificationQueue, notificationService,
		cfg.Notification.MaxAttempts, cfg.Notification.PollInterval(), logger)
	outboxRelay := worker.NewOutboxRelay(outboxRepo, dispatcher, cfg.Notification.OutboxBatchSize,
		cfg.Notification.OutboxPollInterval(), cfg.Notification.OutboxLease(), logger)
	archiveSweeper := worker.NewArchiveSweeper(requestService,
		cfg.Archive.SweepInterval(), cfg.Archive.RetainCompleted(), logger)
	for _, run := range []func(context.Context){outboxRelay.Run, notificationWorker.Run, archiveSweeper.Run} {
		workers.Add(1)
		go func(run func(context.Context)) {
			defer workers.Done()
			run(workerCtx)
		}(run)
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    int(cfg.Storage.MaxUploadBytes)*maxFilesPerRequest + 1<<20,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:         cfg.App.RequestTimeout(),
		CORSOrigins:     cfg.App.CORSOrigins,
		RateLimitPerMin: cfg.RateLimit.PerMinute,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
			"storage":  objects,
		}, metrics),
		Auth:           handlers.NewAuthHandler(authService, userService),
		Users:          handlers.NewUsersHandler(userService, attachmentService),
		Requests:       handlers.NewRequestsHandler(requestService, attachmentService),
		Offices:        handlers.NewOfficesHandler(officeFilterService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Files:          handlers.NewFilesHandler(attachmentService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopWorkers()
	workers.Wait()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
