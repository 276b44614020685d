package usecase

import (
	"context"
	"log/slog"
	"time"

	"provider-dispatch/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionService implements the intake and lookup operations for sessions.
// Newly created sessions start (PENDING, OPEN) and are picked up by the next
// dispatch batch.
type SessionService struct {
	repo   domain.SessionRepository
	logger *slog.Logger
	tracer trace.Tracer
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(repo domain.SessionRepository, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("provider-dispatch-usecase"),
	}
}

// Create validates and persists a new session.
func (s *SessionService) Create(ctx context.Context, session *domain.Session) error {
	ctx, span := s.tracer.Start(ctx, "service.CreateSession")
	defer span.End()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.DispatchState = domain.DispatchStatePending
	session.ResolutionState = domain.ResolutionStateOpen
	span.SetAttributes(attribute.String("session.id", session.ID))

	if err := session.Validate(); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session in repository")
		return err
	}

	s.logger.Info("session created", "session_id", session.ID)
	return nil
}

// Get retrieves a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get session from repository")
	}
	return session, err
}
