package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/observability"
	"github.com/alfanzaky/txhook/pkg/ratelimit"
	"github.com/alfanzaky/txhook/pkg/xresponse"
)

// RouteOptions configures the HTTP surface
type RouteOptions struct {
	Limiter        *ratelimit.Store
	MetricsHandler *observability.MetricsHandler
	TaskHandler    *TaskHandler
	MaxBodyBytes   int64
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, transactionHandler *TransactionHandler, opts RouteOptions) {
	router.Use(recoveryMiddleware(), observability.ObservabilityMiddleware())

	router.GET("/", transactionHandler.Health)
	if h := opts.MetricsHandler; h != nil {
		router.GET("/health", h.HealthEndpoint())
		router.GET("/ready", h.ReadinessEndpoint())
		router.GET("/live", h.LivenessEndpoint())
		router.GET("/metrics", h.MetricsEndpoint())
	}

	v1 := router.Group("/api/v1")
	{
		configureWebhookRoutes(v1, transactionHandler, opts)
		configureTransactionRoutes(v1, transactionHandler)
		if opts.TaskHandler != nil {
			configureTaskRoutes(v1, opts.TaskHandler)
		}
	}

	logger.Info("API routes configured successfully")
}

func configureWebhookRoutes(group *gin.RouterGroup, transactionHandler *TransactionHandler, opts RouteOptions) {
	webhooks := group.Group("/webhooks")
	if opts.Limiter != nil {
		webhooks.Use(ratelimit.Middleware(opts.Limiter))
	}
	if opts.MaxBodyBytes > 0 {
		webhooks.Use(maxBodyMiddleware(opts.MaxBodyBytes))
	}
	{
		webhooks.POST("/transactions", transactionHandler.ReceiveWebhook)
	}
}

func configureTransactionRoutes(group *gin.RouterGroup, transactionHandler *TransactionHandler) {
	routes := group.Group("/transactions")
	{
		routes.GET("/:id", transactionHandler.GetTransaction)
	}
}

func configureTaskRoutes(group *gin.RouterGroup, taskHandler *TaskHandler) {
	routes := group.Group("/tasks")
	{
		routes.GET("/failed", taskHandler.ListFailed)
		routes.GET("/:key", taskHandler.GetTask)
		routes.POST("/:key/requeue", taskHandler.Requeue)
	}
}

// maxBodyMiddleware caps the request body; oversized bodies fail JSON binding
func maxBodyMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			logger.String("error", fmt.Sprintf("%v", recovered)),
			logger.String("path", c.Request.URL.Path),
			logger.String("method", c.Request.Method),
			logger.Time("at", time.Now()),
		)

		xresponse.InternalServerError(c, "Internal server error")
		c.Abort()
	})
}
