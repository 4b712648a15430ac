package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/txhook/config"
	"github.com/alfanzaky/txhook/internal/bootstrap"
	apihandler "github.com/alfanzaky/txhook/internal/handler/api"
	"github.com/alfanzaky/txhook/internal/usecase"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/observability"
	"github.com/alfanzaky/txhook/pkg/ratelimit"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.Environment)
	defer logger.Close()

	// Print configuration in development mode
	if cfg.App.IsDevelopment() {
		cfg.Print()
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := bootstrap.Open(startCtx, cfg)
	startCancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", logger.ErrorField(err))
	}
	defer deps.Close()

	ingestionUC := usecase.NewIngestionUsecase(deps.TransactionRepo, deps.QueueRepo)
	transactionHandler := apihandler.NewTransactionHandler(ingestionUC)

	// Background work stops on SIGINT/SIGTERM
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var background sync.WaitGroup

	if cfg.Worker.Embedded {
		transactionWorker := deps.NewTransactionWorker(cfg)
		sweeper, err := deps.NewSweeper(cfg)
		if err != nil {
			logger.Fatal("Failed to configure recovery sweeper", logger.ErrorField(err))
		}

		background.Add(2)
		go func() {
			defer background.Done()
			transactionWorker.Start(workerCtx)
		}()
		go func() {
			defer background.Done()
			sweeper.Start(workerCtx)
		}()
		logger.Info("Embedded worker pool enabled")
	}

	limiter := ratelimit.NewPerMinute(cfg.API.RateLimitPerMinute)
	limiter.StartJanitor(workerCtx, 2*time.Minute)

	// Set Gin mode
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	metricsHandler := observability.NewMetricsHandler(cfg.App.Name, map[string]observability.Pinger{
		"store": deps.TransactionRepo,
		"queue": deps.QueueRepo,
	})

	router := gin.New()
	apihandler.SetupRoutes(router, transactionHandler, apihandler.RouteOptions{
		Limiter:        limiter,
		MetricsHandler: metricsHandler,
		TaskHandler:    apihandler.NewTaskHandler(deps.QueueRepo),
		MaxBodyBytes:   cfg.API.MaxRequestSize,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server",
			logger.String("port", cfg.App.Port),
			logger.String("environment", cfg.App.Environment),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	workerCancel()
	background.Wait()

	logger.Info("Server exited")
}
