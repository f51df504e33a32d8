package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"todo_service/internal/activity"
	"todo_service/internal/auth"
	"todo_service/internal/middleware"
	"todo_service/internal/observability"
	"todo_service/internal/task"
	"todo_service/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Dependencies are the long-lived handles the API process builds at startup.
type Dependencies struct {
	DB          *sql.DB
	Mongo       *mongo.Client
	Redis       *redis.Client
	Tokens      *auth.TokenService
	Metrics     *observability.Metrics
	UserService user.UserServiceInterface
	TaskService task.TaskServiceInterface
	Activity    activity.ServiceInterface
	// UserRateLimit applies to authenticated routes, keyed per user.
	UserRateLimit *middleware.RateLimiterConfig
}

// SetupHandler builds the router with middleware and every route.
func SetupHandler(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	if deps.Metrics != nil {
		r.Use(middleware.PrometheusMiddleware(deps.Metrics))
	}

	userController := user.NewUserController(deps.UserService)
	taskController := task.NewTaskController(deps.TaskService)
	activityController := activity.NewActivityController(deps.Activity)

	setupRoutes(r, deps, userController, taskController, activityController)

	return r
}

// setupRoutes configures all application routes
func setupRoutes(r *gin.Engine, deps Dependencies, userCtrl *user.UserController, taskCtrl *task.TaskController, activityCtrl *activity.ActivityController) {
	userLimit := deps.UserRateLimit
	if userLimit == nil {
		userLimit = middleware.DefaultRateLimiterConfig()
	}
	authenticated := []gin.HandlerFunc{
		middleware.AuthMiddleware(deps.Tokens),
		middleware.RateLimiterMiddleware(deps.Redis, userLimit, middleware.ByUser),
	}
	credentialLimit := middleware.RateLimiterMiddleware(deps.Redis, middleware.StrictRateLimiter(), middleware.ByClientIP)

	// Public routes - Authentication
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", credentialLimit, userCtrl.Register)
		authGroup.POST("/token", credentialLimit, userCtrl.Token)
	}

	me := authGroup.Group("/users/me", authenticated...)
	{
		me.GET("", userCtrl.Me)
		me.PATCH("", userCtrl.UpdateMe)
	}

	tasks := r.Group("/tasks", authenticated...)
	{
		tasks.POST("", taskCtrl.CreateTask)
		tasks.GET("", taskCtrl.ListTasks)
		tasks.PUT("/:id", taskCtrl.UpdateTask)
		tasks.DELETE("/:id", taskCtrl.DeleteTask)
		tasks.GET("/:id/activity", activityCtrl.GetTaskActivity)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(deps))
}

// healthz reports whether the relational store and the cache answer.
func healthz(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			} else {
				checks["postgres"] = "ok"
			}
		}
		if deps.Mongo != nil {
			if err := deps.Mongo.Ping(ctx, readpref.Primary()); err != nil {
				checks["mongo"] = err.Error()
				healthy = false
			} else {
				checks["mongo"] = "ok"
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
	}
}
