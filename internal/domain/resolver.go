package domain

import "context"

// Provider is a candidate eligible to receive a session's notification.
type Provider struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// CandidateResolver resolves a session's category and location to the set of
// eligible providers. An empty result is not an error; the session simply
// stays pending until candidates exist.
type CandidateResolver interface {
	Resolve(ctx context.Context, categoryID, locationID int64) ([]Provider, error)
}
