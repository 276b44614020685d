package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"provider-dispatch/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const sessionColumns = `session_id, client_contact, category_id, location_id, description,
	dispatch_state, resolution_state, accepted_by, candidate_count, created_at, dispatched_at`

// sessionRepository implements domain.SessionRepository on PostgreSQL. The
// conditional state transitions are single UPDATE statements guarded by a
// WHERE clause on the current state; the row count tells the caller whether
// this call performed the transition.
type sessionRepository struct {
	db     *DB
	logger *slog.Logger
	tracer trace.Tracer
}

// NewSessionRepository creates a session repository backed by PostgreSQL.
func NewSessionRepository(db *DB, logger *slog.Logger) domain.SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger.With("component", "session-repository"),
		tracer: otel.Tracer("provider-dispatch-postgres-repo"),
	}
}

// Create persists a new session.
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.Create")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID))

	query := `
		INSERT INTO sessions
		(session_id, client_contact, category_id, location_id, description,
		 dispatch_state, resolution_state, candidate_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Conn().ExecContext(ctx, query,
		session.ID, session.ClientContact, session.CategoryID, session.LocationID,
		session.Description, session.DispatchState, session.ResolutionState,
		session.CandidateCount, session.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert session")
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

// Get retrieves a session by id.
func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.Get")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`
	session, err := scanSession(r.db.Conn().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get session")
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session, nil
}

// ListPendingDispatch returns sessions eligible for dispatch, oldest first,
// bounding starvation.
func (r *sessionRepository) ListPendingDispatch(ctx context.Context, limit int) ([]*domain.Session, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.ListPendingDispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE dispatch_state = $1
		  AND client_contact <> ''
		  AND description IS NOT NULL AND description <> ''
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.querySessions(ctx, span, query, domain.DispatchStatePending, limit)
}

// ListOpenSessions returns sessions eligible for acceptance, most recently
// created first.
func (r *sessionRepository) ListOpenSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.ListOpenSessions")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE dispatch_state = $1 AND resolution_state = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	return r.querySessions(ctx, span, query,
		domain.DispatchStateDispatched, domain.ResolutionStateOpen, limit)
}

// MarkDispatched transitions the session from PENDING to DISPATCHED exactly
// once and records the candidate count.
func (r *sessionRepository) MarkDispatched(ctx context.Context, id string, candidateCount int) error {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.MarkDispatched")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id), attribute.Int("candidates", candidateCount))

	query := `
		UPDATE sessions
		SET dispatch_state = $1, candidate_count = $2, dispatched_at = now()
		WHERE session_id = $3 AND dispatch_state = $4
	`
	result, err := r.db.Conn().ExecContext(ctx, query,
		domain.DispatchStateDispatched, candidateCount, id, domain.DispatchStatePending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark session dispatched")
		return fmt.Errorf("failed to mark session %s dispatched: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s is not pending dispatch", id)
	}
	return nil
}

// TryAccept is the first-writer-wins commit. The UPDATE is conditioned on
// resolution_state still being OPEN; PostgreSQL serializes the row update, so
// exactly one concurrent caller observes an affected row.
func (r *sessionRepository) TryAccept(ctx context.Context, id, responder string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.TryAccept")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	query := `
		UPDATE sessions
		SET resolution_state = $1, accepted_by = $2
		WHERE session_id = $3
		  AND dispatch_state = $4
		  AND resolution_state = $5
	`
	result, err := r.db.Conn().ExecContext(ctx, query,
		domain.ResolutionStateAccepted, responder, id,
		domain.DispatchStateDispatched, domain.ResolutionStateOpen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to accept session")
		return false, fmt.Errorf("failed to accept session %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	won := rows == 1
	span.SetAttributes(attribute.Bool("accept.won", won))
	return won, nil
}

// RecordDecline stores the decline and, when every dispatched candidate has
// declined, transitions the session to DECLINED_ALL. Both statements run in
// one transaction so the count and the transition cannot race.
func (r *sessionRepository) RecordDecline(ctx context.Context, id, responder string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.RecordDecline")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO session_declines (session_id, provider_address)
		VALUES ($1, $2)
		ON CONFLICT (session_id, provider_address) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, id, responder); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record decline")
		return false, fmt.Errorf("failed to record decline for session %s: %w", id, err)
	}

	update := `
		UPDATE sessions
		SET resolution_state = $1
		WHERE session_id = $2
		  AND resolution_state = $3
		  AND candidate_count > 0
		  AND (SELECT COUNT(*) FROM session_declines WHERE session_id = $2) >= candidate_count
	`
	result, err := tx.ExecContext(ctx, update,
		domain.ResolutionStateDeclinedAll, id, domain.ResolutionStateOpen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check for all-declined")
		return false, fmt.Errorf("failed to update decline state for session %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit decline for session %s: %w", id, err)
	}
	return rows == 1, nil
}

func (r *sessionRepository) querySessions(ctx context.Context, span trace.Span, query string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session query failed")
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			r.logger.Warn("failed to scan session row", "error", err)
			continue
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	span.SetAttributes(attribute.Int("rows", len(sessions)))
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session     domain.Session
		acceptedBy  sql.NullString
		description sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.ClientContact,
		&session.CategoryID,
		&session.LocationID,
		&description,
		&session.DispatchState,
		&session.ResolutionState,
		&acceptedBy,
		&session.CandidateCount,
		&session.CreatedAt,
		&session.DispatchedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Description = description.String
	if acceptedBy.Valid {
		session.AcceptedBy = &acceptedBy.String
	}
	return &session, nil
}
