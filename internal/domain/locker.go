// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired signals that the lock is currently held elsewhere,
// typically by another replica running the same batch.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock is a distributed lock that has been acquired.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker hands out named distributed locks. Lock must not block: when the
// named lock is already held it returns ErrLockNotAcquired immediately so
// the caller can skip its turn.
type Locker interface {
	Lock(ctx context.Context, name string) (Lock, error)
}
