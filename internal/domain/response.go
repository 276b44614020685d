package domain

// Decision is a provider's answer to a dispatched offer.
type Decision string

const (
	DecisionAccept  Decision = "ACCEPT"
	DecisionDecline Decision = "DECLINE"
)

// Valid reports whether the decision is a recognized value.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionDecline
}

// InboundResponse is one provider response event as delivered by the inbound
// transport, after the collaborator has parsed the wire framing. SessionID is
// optional: transports that round-trip the offer's session id set it, legacy
// free-text replies leave it empty and are correlated by the fallback lookup.
type InboundResponse struct {
	Responder string
	Decision  Decision
	SessionID string
}

// ResponseOutcome classifies how the correlator handled an inbound response.
// Losing an acceptance race or responding to an already-resolved session are
// defined outcomes, not errors.
type ResponseOutcome string

const (
	OutcomeAccepted        ResponseOutcome = "accepted"
	OutcomeAlreadyTaken    ResponseOutcome = "already_taken"
	OutcomeDeclineRecorded ResponseOutcome = "decline_recorded"
	OutcomeAllDeclined     ResponseOutcome = "all_declined"
	OutcomeNoPending       ResponseOutcome = "no_pending_session"
	OutcomeInvalidDecision ResponseOutcome = "invalid_decision"
)
