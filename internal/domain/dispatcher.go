// internal/domain/dispatcher.go
package domain

import "context"

// Dispatcher runs one bounded dispatch batch: select pending sessions,
// resolve candidates, fan the offers out, mark each session dispatched.
type Dispatcher interface {
	RunBatch(ctx context.Context) error
}
