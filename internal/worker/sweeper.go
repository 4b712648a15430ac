package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/alfanzaky/txhook/pkg/logger"
)

// StuckRecoverer requeues transactions whose claim has expired
type StuckRecoverer interface {
	Enabled() bool
	RecoverStuck(ctx context.Context) (int, error)
	ReportStatusCounts(ctx context.Context) error
}

// Sweeper periodically refreshes status gauges and, when a claim lease is
// configured, runs stuck transaction recovery on a cron schedule
type Sweeper struct {
	recovery StuckRecoverer
	schedule cron.Schedule
	expr     string
}

// NewSweeper parses expr as a standard cron expression or descriptor such as "@every 1m"
func NewSweeper(recovery StuckRecoverer, expr string) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid recovery schedule %q: %w", expr, err)
	}
	return &Sweeper{recovery: recovery, schedule: schedule, expr: expr}, nil
}

// Start blocks until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	if !s.recovery.Enabled() {
		logger.Info("Stuck transaction recovery disabled, sweeper only reports status counts")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))
	c.Start()
	logger.Info("Sweeper started", logger.String("schedule", s.expr))

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Sweeper stopped")
}

// RunOnce performs a single pass and returns how many transactions were requeued
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if err := s.recovery.ReportStatusCounts(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("Failed to refresh transaction status counts", logger.ErrorField(err))
	}
	if !s.recovery.Enabled() {
		return 0
	}

	n, err := s.recovery.RecoverStuck(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("Stuck transaction recovery failed", logger.ErrorField(err))
	}
	return n
}
