package domain

import (
	"context"
	"errors"
)

// ErrSessionNotFound is a sentinel error returned when a session is not found.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the single source of truth for sessions. Both core
// components mutate sessions only through the conditional transitions below;
// there is no other mutation path.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// ListPendingDispatch returns up to limit sessions that are eligible for
	// dispatch, oldest first.
	ListPendingDispatch(ctx context.Context, limit int) ([]*Session, error)

	// ListOpenSessions returns up to limit sessions that are eligible for
	// acceptance, most recently created first. Used as the fallback lookup
	// when an inbound response carries no session id.
	ListOpenSessions(ctx context.Context, limit int) ([]*Session, error)

	// MarkDispatched transitions the session from PENDING to DISPATCHED and
	// records how many candidates were notified. The transition is
	// conditional on the session still being PENDING.
	MarkDispatched(ctx context.Context, id string, candidateCount int) error

	// TryAccept atomically transitions resolution_state from OPEN to ACCEPTED
	// and sets accepted_by, conditioned on the state still being OPEN at
	// commit time. It returns whether this call won; under concurrent calls
	// for the same session exactly one caller wins.
	TryAccept(ctx context.Context, id, responder string) (bool, error)

	// RecordDecline records that responder declined the session. When every
	// dispatched candidate has declined, the session is transitioned to
	// DECLINED_ALL (conditional on it still being OPEN) and allDeclined
	// reports true.
	RecordDecline(ctx context.Context, id, responder string) (allDeclined bool, err error)
}
