package engine

import (
	"context"
	"time"

	"github.com/kbukum/planengine/execution"
	"github.com/kbukum/planengine/redis"
)

// lockerAdapter bridges the redis locker to the execution service's
// AdvisoryLocker interface.
type lockerAdapter struct {
	locker *redis.Locker
}

var _ execution.AdvisoryLocker = (*lockerAdapter)(nil)

func (a *lockerAdapter) WithLock(ctx context.Context, name string, fn func() error) error {
	lock, err := a.locker.AcquireWait(ctx, name, 25*time.Millisecond)
	if err != nil {
		return err
	}
	defer func() {
		// Release even when ctx is already cancelled; an expired lock
		// is reported as ErrLockLost and safe to ignore here.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()
	return fn()
}
