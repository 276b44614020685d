package usecase

import (
	"context"
	"log/slog"
	"time"

	"provider-dispatch/internal/domain"
	"provider-dispatch/internal/metrics"
)

// SchedulerService gates the dispatch scheduler behind leader election:
// every node campaigns, only the current leader runs the cadence. When
// leadership is lost the scheduler stops and the node campaigns again.
type SchedulerService struct {
	leaderManager domain.LeaderElectionManager
	scheduler     domain.Scheduler
	nodeID        string
	logger        *slog.Logger
}

func NewSchedulerService(leaderManager domain.LeaderElectionManager, scheduler domain.Scheduler, nodeID string, logger *slog.Logger) *SchedulerService {
	return &SchedulerService{
		leaderManager: leaderManager,
		scheduler:     scheduler,
		nodeID:        nodeID,
		logger:        logger.With("component", "scheduler-service"),
	}
}

func (s *SchedulerService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting", "node_id", s.nodeID)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler service shutting down", "node_id", s.nodeID)
			s.scheduler.Stop()
			return ctx.Err()
		default:
			s.logger.Info("campaigning for leadership", "node_id", s.nodeID)
			lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
			if err != nil {
				s.logger.Error("leadership campaign failed, retrying",
					"node_id", s.nodeID, "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			s.logger.Info("became the leader, starting dispatch scheduler", "node_id", s.nodeID)
			metrics.IsLeader.WithLabelValues(s.nodeID).Set(1)

			schedulerCtx, cancelScheduler := context.WithCancel(ctx)
			go func() {
				if err := s.scheduler.Start(schedulerCtx); err != nil && err != context.Canceled {
					s.logger.Error("dispatch scheduler stopped with error", "error", err)
				}
			}()

			select {
			case <-lostLeadershipCh:
				s.logger.Warn("lost leadership, stopping dispatch scheduler", "node_id", s.nodeID)
				metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
				cancelScheduler()
			case <-ctx.Done():
				metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
				cancelScheduler()
				return ctx.Err()
			}
		}
	}
}
