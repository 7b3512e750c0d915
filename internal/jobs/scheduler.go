package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/zfogg/friendlypix/internal/logger"
	"go.uber.org/zap"
)

// Scheduler runs both cleanup jobs periodically
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler firing every interval
func NewScheduler(r *Runner, interval time.Duration, log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{runner: r, interval: interval, log: logger.OrDefault(log), ctx: ctx, cancel: cancel}
}

// Start begins the periodic cleanup process
func (s *Scheduler) Start() {
	s.log.Info("Starting cleanup scheduler", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.run()
}

// Stop cancels any running job and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.log.Info("Stopping cleanup scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// run immediately on startup
	s.RunOnce(s.ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// RunOnce runs both jobs and logs their outcome
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range []func(context.Context) (*Result, error){
		s.runner.DeleteOldPosts,
		s.runner.DeleteInactiveAccounts,
	} {
		started := time.Now()
		res, err := job(ctx)
		fields := []zap.Field{zap.String("job", res.Job), zap.Int("selected", res.Selected), logger.WithDuration(time.Since(started))}
		if res.Pool != nil {
			fields = append(fields, zap.Int("failed", res.Pool.Failed()))
		}
		if err != nil {
			s.log.Error("Cleanup job failed", append(fields, zap.Error(err))...)
			continue
		}
		s.log.Info("Cleanup job completed", fields...)
	}
}
