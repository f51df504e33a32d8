package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todo_service/internal/activity"
	"todo_service/internal/auth"
	"todo_service/internal/cache"
	"todo_service/internal/config"
	"todo_service/internal/db"
	"todo_service/internal/handler"
	"todo_service/internal/logger"
	"todo_service/internal/middleware"
	"todo_service/internal/observability"
	"todo_service/internal/queue"
	"todo_service/internal/task"
	"todo_service/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.AppName, cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pg := db.Init(&cfg.DB)
	defer func() {
		if err := pg.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}()

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	if err := db.Migrate(bootCtx, pg); err != nil {
		logrus.WithError(err).Fatal("Failed to migrate database")
	}

	mongoClient := db.InitMongo(&cfg.Mongo)
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logrus.WithError(err).Error("Failed to close MongoDB connection")
		}
	}()

	rdb := cache.SetupRedis(&cfg.Redis)
	defer func() {
		if err := rdb.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close redis connection")
		}
	}()

	conn := queue.SetupRabbitMQ(&cfg.RabbitMQ)
	defer func() {
		if err := conn.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close RabbitMQ connection")
		}
	}()
	if err := queue.EnsureQueue(conn, cfg.RabbitMQ.ActivityQueue); err != nil {
		logrus.WithError(err).Fatal("Failed to declare activity queue")
	}

	observability.InitMetrics()
	metrics := observability.GlobalMetrics
	logrus.Info("Metrics initialized")

	taskRepo := task.NewTaskRepository(mongoClient.Database(cfg.Mongo.Database).Collection(cfg.Mongo.TasksCollection), metrics)
	if err := taskRepo.EnsureIndexes(bootCtx); err != nil {
		logrus.WithError(err).Fatal("Failed to create task indexes")
	}

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	r := handler.SetupHandler(handler.Dependencies{
		DB:          pg,
		Mongo:       mongoClient,
		Redis:       rdb,
		Tokens:      tokens,
		Metrics:     metrics,
		UserService: user.NewUserService(user.NewUserRepository(), pg, tokens, metrics),
		TaskService: task.NewTaskService(
			taskRepo,
			cache.NewTaskCache(rdb, cfg.Redis.CacheTTL),
			activity.NewRabbitPublisher(conn, cfg.RabbitMQ.ActivityQueue, metrics),
			metrics,
			task.Limits{Default: cfg.Tasks.DefaultLimit, Max: cfg.Tasks.MaxLimit},
		),
		Activity:      activity.NewService(activity.NewRepository(), pg),
		UserRateLimit: middleware.RateLimiterFromConfig(cfg.RateLimit),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("Starting server on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	logrus.Info("Server exited")
}
