package domain

import "context"

// Message is the payload handed to a Notifier. Template selection and
// vendor-specific formatting are the notifier implementation's concern; the
// core only decides the content.
type Message struct {
	// Template names a vendor message template. When empty, Body is sent as
	// plain text.
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Body     string            `json:"body,omitempty"`
}

// Notifier delivers a message to a provider address over the messaging
// channel. Delivery is best-effort; callers bound each Send with a timeout
// and treat failures as non-fatal.
type Notifier interface {
	Send(ctx context.Context, address string, msg Message) error
}
