// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"provider-dispatch/internal/domain"
	"provider-dispatch/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// batchLockName is the distributed lock guarding a dispatch run. Holding it
// keeps replicas from dispatching the same batch concurrently.
const batchLockName = "dispatch-batch"

// Dispatcher implements the dispatch loop: it pulls undispatched sessions,
// resolves the candidate set for each, fans the offer out to every candidate
// and marks the session dispatched.
type Dispatcher struct {
	repo        domain.SessionRepository
	resolver    domain.CandidateResolver
	notifier    domain.Notifier
	locker      domain.Locker
	batchSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewDispatcher creates a new session dispatcher.
func NewDispatcher(repo domain.SessionRepository, resolver domain.CandidateResolver, notifier domain.Notifier, locker domain.Locker, batchSize int, sendTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		resolver:    resolver,
		notifier:    notifier,
		locker:      locker,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		logger:      logger.With("component", "dispatcher"),
		tracer:      otel.Tracer("provider-dispatch-dispatcher"),
	}
}

// RunBatch processes one bounded dispatch batch. A failure for one session
// aborts that session only; the session stays PENDING and is re-selected on
// a later run. When another replica holds the batch lock the run is skipped
// entirely, which is not an error.
func (d *Dispatcher) RunBatch(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "dispatch.RunBatch")
	defer span.End()

	lock, err := d.locker.Lock(ctx, batchLockName)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			d.logger.Info("dispatch batch already running elsewhere, skipping tick")
			metrics.DispatchRunsTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire batch lock")
		metrics.DispatchRunsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to acquire dispatch batch lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			d.logger.Warn("failed to release dispatch batch lock", "error", err)
		}
	}()

	sessions, err := d.repo.ListPendingDispatch(ctx, d.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list pending sessions")
		metrics.DispatchRunsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to list pending sessions: %w", err)
	}
	span.SetAttributes(attribute.Int("dispatch.batch_size", len(sessions)))

	if len(sessions) == 0 {
		d.logger.Debug("no pending sessions to dispatch")
		metrics.DispatchRunsTotal.WithLabelValues("completed").Inc()
		return nil
	}

	d.logger.Info("dispatching pending sessions", "count", len(sessions))
	for _, session := range sessions {
		if err := d.dispatchSession(ctx, session); err != nil {
			d.logger.Error("failed to dispatch session", "session_id", session.ID, "error", err)
		}
	}

	metrics.DispatchRunsTotal.WithLabelValues("completed").Inc()
	return nil
}

// dispatchSession fans one session out to its candidate set. Individual
// delivery failures are logged and do not block delivery to the remaining
// candidates; the session is marked dispatched after every candidate has
// been attempted, regardless of individual outcomes. An empty candidate set
// leaves the session PENDING so a later run can retry once candidates exist.
func (d *Dispatcher) dispatchSession(ctx context.Context, session *domain.Session) error {
	ctx, span := d.tracer.Start(ctx, "dispatch.Session",
		trace.WithAttributes(attribute.String("session.id", session.ID)))
	defer span.End()

	candidates, err := d.resolver.Resolve(ctx, session.CategoryID, session.LocationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate resolution failed")
		return fmt.Errorf("failed to resolve candidates for session %s: %w", session.ID, err)
	}

	if len(candidates) == 0 {
		d.logger.Warn("no candidates for session, leaving pending",
			"session_id", session.ID,
			"category_id", session.CategoryID,
			"location_id", session.LocationID)
		metrics.EmptyCandidateSetsTotal.Inc()
		return nil
	}
	span.SetAttributes(attribute.Int("dispatch.candidates", len(candidates)))

	delivered := 0
	for _, candidate := range candidates {
		if err := d.sendOffer(ctx, session, candidate); err != nil {
			d.logger.Error("failed to notify candidate",
				"session_id", session.ID,
				"provider", candidate.Address,
				"error", err)
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			continue
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		delivered++
	}

	if err := d.repo.MarkDispatched(ctx, session.ID, len(candidates)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark session dispatched")
		return fmt.Errorf("failed to mark session %s dispatched: %w", session.ID, err)
	}

	d.logger.Info("session dispatched",
		"session_id", session.ID,
		"candidates", len(candidates),
		"delivered", delivered)
	metrics.SessionsDispatchedTotal.Inc()
	return nil
}

func (d *Dispatcher) sendOffer(ctx context.Context, session *domain.Session, candidate domain.Provider) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.notifier.Send(sendCtx, candidate.Address, offerMessage(session, candidate))
}
