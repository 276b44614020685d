// internal/dispatch/correlator.go
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

// Correlator handles inbound provider responses. It resolves the session a
// response belongs to and performs the first-writer-wins commit. It is safe
// under arbitrary concurrency: the only coordination point is the
// repository's atomic conditional update, so any number of responses for the
// same or different sessions may be handled in parallel.
type Correlator struct {
	repo        domain.SessionRepository
	notifier    domain.Notifier
	sendTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewCorrelator creates a new response correlator.
func NewCorrelator(repo domain.SessionRepository, notifier domain.Notifier, sendTimeout time.Duration, logger *slog.Logger) *Correlator {
	return &Correlator{
		repo:        repo,
		notifier:    notifier,
		sendTimeout: sendTimeout,
		logger:      logger.With("component", "correlator"),
		tracer:      otel.Tracer("provider-dispatch-correlator"),
	}
}

// HandleResponse processes one inbound response event. Losing an acceptance
// race, responding after resolution, or responding with no session in flight
// are defined outcomes, not errors; an error is only returned when the store
// or lookup itself fails.
func (c *Correlator) HandleResponse(ctx context.Context, ev domain.InboundResponse) (domain.ResponseOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "correlator.HandleResponse",
		trace.WithAttributes(
			attribute.String("response.responder", ev.Responder),
			attribute.String("response.decision", string(ev.Decision)),
		))
	defer span.End()

	if !ev.Decision.Valid() {
		c.logger.Warn("rejected inbound response with unknown decision",
			"responder", ev.Responder, "decision", string(ev.Decision))
		metrics.InboundResponsesTotal.WithLabelValues("unknown", string(domain.OutcomeInvalidDecision)).Inc()
		return domain.OutcomeInvalidDecision, nil
	}

	session, err := c.lookupSession(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session lookup failed")
		return "", err
	}

	if session == nil || !session.EligibleForAcceptance() {
		// An ACCEPT aimed at an explicit, already-resolved session lost the
		// race; everything else is simply a response with nothing in flight.
		outcome := domain.OutcomeNoPending
		if session != nil && ev.Decision == domain.DecisionAccept &&
			session.ResolutionState != domain.ResolutionStateOpen {
			outcome = domain.OutcomeAlreadyTaken
		}
		c.logger.Info("no eligible session for response",
			"responder", ev.Responder, "outcome", string(outcome))
		metrics.InboundResponsesTotal.WithLabelValues(string(ev.Decision), string(outcome)).Inc()
		return outcome, nil
	}
	span.SetAttributes(attribute.String("session.id", session.ID))

	var outcome domain.ResponseOutcome
	switch ev.Decision {
	case domain.DecisionAccept:
		outcome, err = c.handleAccept(ctx, session, ev.Responder)
	case domain.DecisionDecline:
		outcome, err = c.handleDecline(ctx, session, ev.Responder)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply response")
		return "", err
	}

	metrics.InboundResponsesTotal.WithLabelValues(string(ev.Decision), string(outcome)).Inc()
	return outcome, nil
}

// lookupSession resolves the session a response targets. An explicit session
// id is fetched directly. Without one, the most recently created open session
// is assumed, which is only unambiguous with a single session in flight; the
// outbound offer carries the session id precisely so transports can avoid
// this fallback.
func (c *Correlator) lookupSession(ctx context.Context, ev domain.InboundResponse) (*domain.Session, error) {
	if ev.SessionID != "" {
		session, err := c.repo.Get(ctx, ev.SessionID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get session %s: %w", ev.SessionID, err)
		}
		return session, nil
	}

	sessions, err := c.repo.ListOpenSessions(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

func (c *Correlator) handleAccept(ctx context.Context, session *domain.Session, responder string) (domain.ResponseOutcome, error) {
	won, err := c.repo.TryAccept(ctx, session.ID, responder)
	if err != nil {
		return "", fmt.Errorf("failed to accept session %s: %w", session.ID, err)
	}
	if !won {
		c.logger.Info("acceptance lost the race", "session_id", session.ID, "responder", responder)
		return domain.OutcomeAlreadyTaken, nil
	}

	c.logger.Info("session accepted", "session_id", session.ID, "accepted_by", responder)

	// Confirmation delivery is best-effort. The transition is committed and
	// final regardless of downstream notification success.
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.notifier.Send(sendCtx, responder, confirmationMessage(session)); err != nil {
		c.logger.Error("failed to send confirmation to accepting provider",
			"session_id", session.ID, "responder", responder, "error", err)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}

	return domain.OutcomeAccepted, nil
}

func (c *Correlator) handleDecline(ctx context.Context, session *domain.Session, responder string) (domain.ResponseOutcome, error) {
	allDeclined, err := c.repo.RecordDecline(ctx, session.ID, responder)
	if err != nil {
		return "", fmt.Errorf("failed to record decline for session %s: %w", session.ID, err)
	}
	if allDeclined {
		c.logger.Info("all candidates declined session", "session_id", session.ID)
		return domain.OutcomeAllDeclined, nil
	}
	c.logger.Info("decline recorded", "session_id", session.ID, "responder", responder)
	return domain.OutcomeDeclineRecorded, nil
}
