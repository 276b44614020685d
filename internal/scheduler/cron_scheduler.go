// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"provider-dispatch/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// cronScheduler triggers the dispatch loop on a fixed interval. The cron
// chain skips a tick while the previous run is still in progress, so batch
// runs never overlap within the process.
type cronScheduler struct {
	cron       *cron.Cron
	dispatcher domain.Dispatcher
	interval   time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewCronScheduler creates a scheduler that runs one dispatch batch every
// interval.
func NewCronScheduler(dispatcher domain.Dispatcher, interval time.Duration, logger *slog.Logger) domain.Scheduler {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &cronScheduler{
		cron:       c,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger.With("component", "dispatch-scheduler"),
		tracer:     otel.Tracer("provider-dispatch-scheduler"),
	}
}

func (s *cronScheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddJob(spec, &dispatchJob{
		dispatcher: s.dispatcher,
		logger:     s.logger,
		tracer:     s.tracer,
	}); err != nil {
		return fmt.Errorf("failed to schedule dispatch batch: %w", err)
	}

	s.logger.Info("dispatch scheduler started", "interval", s.interval.String())
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("dispatch scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("dispatch scheduler stopped")
	return ctx.Err()
}

func (s *cronScheduler) Stop() {
	// Stop logic is handled by context cancellation in Start()
}

// dispatchJob is the cron entry; its only job is to run one batch.
type dispatchJob struct {
	dispatcher domain.Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Run is called by the cron library on every tick.
func (j *dispatchJob) Run() {
	ctx, span := j.tracer.Start(context.Background(), "scheduler.DispatchBatch")
	defer span.End()

	if err := j.dispatcher.RunBatch(ctx); err != nil {
		j.logger.Error("dispatch batch failed", "error", err)
		span.RecordError(err)
	}
}
