package domain

import "context"

// Scheduler triggers the dispatch loop on a fixed cadence. Start blocks
// until ctx is cancelled; the trigger is single-flight, a tick is skipped
// while the previous run is still in progress.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
}
