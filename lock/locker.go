// Package lock provides mutual exclusion keyed by string, either within one
// process or across instances sharing a Redis server.
package lock

import (
	"context"
	"errors"
)

// ErrNotHeld is returned by Unlock when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker acquires exclusive locks. Lock blocks until the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}
