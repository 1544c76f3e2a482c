package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Lock errors.
var (
	// ErrLockHeld means another holder currently owns the lock.
	ErrLockHeld = errors.New("advisory lock held by another owner")
	// ErrLockLost means the lock expired or was taken over before release.
	ErrLockLost = errors.New("advisory lock no longer owned")
)

// releaseScript deletes the lock key only when the stored token matches,
// so an expired lock re-acquired by someone else is never released by
// the previous holder.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires short-lived advisory locks keyed by name. The engine
// scopes one around each read-recompute-write status sequence, keyed by
// plan execution id; it is never held across a caller round trip.
type Locker struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewLocker creates a Locker. All lock keys are prefixed and expire
// after ttl even if the holder dies without releasing.
func NewLocker(client *Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// Lock is a held advisory lock.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the lock for name or returns ErrLockHeld immediately.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := l.prefix + ":" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

// AcquireWait retries acquisition until the context is done.
func (l *Locker) AcquireWait(ctx context.Context, name string, pollInterval time.Duration) (*Lock, error) {
	if pollInterval <= 0 {
		pollInterval = 25 * time.Millisecond
	}
	for {
		lock, err := l.Acquire(ctx, name)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release frees the lock. Returns ErrLockLost if the lock already
// expired or was acquired by another holder.
func (lk *Lock) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, lk.locker.client.Unwrap(), []string{lk.key}, lk.token).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrLockLost
	}
	return nil
}
