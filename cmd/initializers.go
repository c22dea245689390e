package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskstream/app/handler"
	"taskstream/app/router"
	"taskstream/internal/jobs"
	"taskstream/internal/service"
	"taskstream/internal/ws"
	"taskstream/pkg/config"
	"taskstream/pkg/logger"
	"taskstream/pkg/metrics"
	"taskstream/pkg/notification"
	"taskstream/pkg/pubsub"
	queueasynq "taskstream/pkg/queue/asynq"
	mysqlstore "taskstream/pkg/store/mysql"
	redisstore "taskstream/pkg/store/redis"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMetrics initializes Prometheus instrumentation
func (app *Application) initMetrics() error {
	app.metrics = metrics.New()
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	repo, err := mysqlstore.NewRepository(dsn)
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis and the Redis-backed stores
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.historyStore = redisstore.NewStatusRepository(
		client,
		app.config.Broadcast.HistoryLimit,
		time.Duration(app.config.Broadcast.HistoryTTL)*time.Second,
	)
	app.deadLetterStore = redisstore.NewDeadLetterRepository(client, app.config.Broadcast.DeadLetterCap)

	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initPubSub initializes the distributed fan-out transport
func (app *Application) initPubSub() error {
	app.pubsub = pubsub.NewRedisPubSub(app.redisClient.GetClient(), app.metrics)
	app.registerCleanup(func() {
		app.pubsub.Close()
		logger.InfoCtx(app.ctx, "Pub/Sub transport has been closed")
	})
	return nil
}

// initWebSocket initializes the connection registry, the fan-out
// bridge and the handshake authenticator
func (app *Application) initWebSocket() error {
	app.registry = ws.NewRegistry(app.metrics)
	app.bridge = ws.NewBridge(app.registry, app.pubsub)
	if err := app.bridge.Register(); err != nil {
		return fmt.Errorf("failed to register fan-out bridge: %w", err)
	}

	app.auth = ws.NewAuthenticator(
		app.config.Auth.JWTSecret,
		app.mysqlRepo.Roles,
		app.config.Auth.RequireAuth,
	)
	return nil
}

// initQueue initializes the task queue manager
func (app *Application) initQueue() error {
	manager, err := queueasynq.NewManager(app.config)
	if err != nil {
		return err
	}

	app.queueManager = manager
	app.registerCleanup(func() {
		manager.Close()
		logger.InfoCtx(app.ctx, "Queue manager has been closed")
	})
	return nil
}

// initServices initializes the service layer and wires the lifecycle
// hooks into the queue
func (app *Application) initServices() error {
	app.broadcaster = service.NewBroadcaster(
		app.pubsub,
		app.bridge,
		app.mysqlRepo.Status,
		app.historyStore,
		app.metrics,
	)

	app.statusService = service.NewStatusService(
		app.mysqlRepo.Status,
		app.historyStore,
		app.deadLetterStore,
		app.queueManager,
	)

	hooks := queueasynq.NewLifecycleHooks(app.broadcaster, app.deadLetterStore, app.metrics).
		WithAlerter(notification.NewFeishuNotifier())
	app.queueManager.Use(hooks.Middleware())

	// Built-in probe task, exercises the full broadcast pipeline
	app.queueManager.RegisterHandler("health_check.ping", asynq.HandlerFunc(
		func(ctx context.Context, t *asynq.Task) error { return nil },
	))

	return nil
}

// initJobs initializes background tasks
func (app *Application) initJobs() error {
	app.jobsManager = jobs.NewManager(app.ctx)
	app.jobsManager.Register(jobs.NewStatsJob(app.registry, app.queueManager, time.Minute))
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.statusHandler = handler.NewStatusHandler(app.statusService)
	app.wsHandler = handler.NewWebSocketHandler(app.registry, app.auth)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()

	r := router.NewRouter(app.statusHandler, app.wsHandler, app.metrics)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}
