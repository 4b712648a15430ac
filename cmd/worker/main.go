package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alfanzaky/txhook/config"
	"github.com/alfanzaky/txhook/internal/bootstrap"
	"github.com/alfanzaky/txhook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger.Init(cfg.App.Environment)
	defer logger.Close()

	if cfg.App.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Standalone worker with the memory store only sees records it creates itself; use WORKER_EMBEDDED on the api instead")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := bootstrap.Open(startCtx, cfg)
	startCancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", logger.ErrorField(err))
	}
	defer deps.Close()

	transactionWorker := deps.NewTransactionWorker(cfg)
	sweeper, err := deps.NewSweeper(cfg)
	if err != nil {
		logger.Fatal("Failed to configure recovery sweeper", logger.ErrorField(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		transactionWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	logger.Info("Worker started",
		logger.Int("concurrency", cfg.Worker.Concurrency),
		logger.Duration("process_delay", cfg.Processor.Delay),
		logger.Duration("claim_lease", cfg.Recovery.ClaimLease),
	)

	<-ctx.Done()
	// A second signal kills the process instead of waiting.
	stop()
	logger.Info("Shutting down worker, waiting for in-flight tasks...")
	wg.Wait()

	logger.Info("Worker exited")
}
