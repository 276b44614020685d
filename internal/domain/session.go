package domain

import (
	"fmt"
	"time"
)

// DispatchState tracks whether a session's fan-out has been attempted.
type DispatchState string

const (
	DispatchStatePending    DispatchState = "PENDING"
	DispatchStateDispatched DispatchState = "DISPATCHED"
)

// ResolutionState tracks the outcome of a session.
type ResolutionState string

const (
	ResolutionStateOpen        ResolutionState = "OPEN"
	ResolutionStateAccepted    ResolutionState = "ACCEPTED"
	ResolutionStateDeclinedAll ResolutionState = "DECLINED_ALL"
)

// Session represents one client service request awaiting provider acceptance.
//
// A session starts (PENDING, OPEN). The dispatch loop moves dispatch_state to
// DISPATCHED exactly once, after fan-out has been attempted for every
// candidate. The response correlator moves resolution_state away from OPEN at
// most once: to ACCEPTED for the first winning acceptance, or to DECLINED_ALL
// once every dispatched candidate has declined. AcceptedBy is set atomically
// with the ACCEPTED transition and is non-nil iff the session is ACCEPTED.
type Session struct {
	ID              string          `json:"id"`
	ClientContact   string          `json:"client_contact"`
	CategoryID      int64           `json:"category_id"`
	LocationID      int64           `json:"location_id"`
	Description     string          `json:"description"`
	DispatchState   DispatchState   `json:"dispatch_state"`
	ResolutionState ResolutionState `json:"resolution_state"`
	AcceptedBy      *string         `json:"accepted_by,omitempty"`
	CandidateCount  int             `json:"candidate_count"`
	CreatedAt       time.Time       `json:"created_at"`
	DispatchedAt    *time.Time      `json:"dispatched_at,omitempty"`
}

// Validate checks if the session is well-formed.
func (s *Session) Validate() error {
	if s.ClientContact == "" {
		return fmt.Errorf("session client contact cannot be empty")
	}
	if s.CategoryID <= 0 {
		return fmt.Errorf("session category id must be positive")
	}
	if s.LocationID <= 0 {
		return fmt.Errorf("session location id must be positive")
	}
	if s.Description == "" {
		return fmt.Errorf("session description cannot be empty")
	}
	if s.ResolutionState == ResolutionStateAccepted && s.AcceptedBy == nil {
		return fmt.Errorf("accepted session must record the accepting provider")
	}
	if s.ResolutionState != ResolutionStateAccepted && s.AcceptedBy != nil {
		return fmt.Errorf("accepted_by may only be set on an accepted session")
	}
	return nil
}

// EligibleForDispatch reports whether the dispatch loop may fan this
// session out.
func (s *Session) EligibleForDispatch() bool {
	return s.DispatchState == DispatchStatePending &&
		s.ClientContact != "" && s.Description != "" &&
		s.CategoryID > 0 && s.LocationID > 0
}

// EligibleForAcceptance reports whether a provider response may still
// resolve this session.
func (s *Session) EligibleForAcceptance() bool {
	return s.DispatchState == DispatchStateDispatched &&
		s.ResolutionState == ResolutionStateOpen
}
