package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/planengine/redis"
	"github.com/kbukum/planengine/redis/testutil"
)

func TestClient_SetGet(t *testing.T) {
	client, _ := testutil.Open(t)
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := client.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("expected v, got %q", got)
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	client, _ := testutil.Open(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "planexec-lock", time.Minute)

	lock, err := locker.Acquire(ctx, "exec-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := locker.Acquire(ctx, "exec-1"); !errors.Is(err, redis.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	// A different key is an independent lock.
	other, err := locker.Acquire(ctx, "exec-2")
	if err != nil {
		t.Fatalf("acquire independent key: %v", err)
	}
	_ = other.Release(ctx)

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Released lock can be re-acquired.
	again, err := locker.Acquire(ctx, "exec-1")
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = again.Release(ctx)
}

func TestLock_ReleaseAfterExpiryIsLost(t *testing.T) {
	client, mini := testutil.Open(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "planexec-lock", 50*time.Millisecond)

	lock, err := locker.Acquire(ctx, "exec-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	mini.FastForward(time.Second)

	if err := lock.Release(ctx); !errors.Is(err, redis.ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
}

func TestLock_ReleaseDoesNotStealNewOwner(t *testing.T) {
	client, mini := testutil.Open(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "planexec-lock", 50*time.Millisecond)

	first, err := locker.Acquire(ctx, "exec-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mini.FastForward(time.Second)

	second, err := locker.Acquire(ctx, "exec-1")
	if err != nil {
		t.Fatalf("expected acquisition after expiry, got %v", err)
	}

	// Stale holder must not release the new owner's lock.
	if err := first.Release(ctx); !errors.Is(err, redis.ErrLockLost) {
		t.Fatalf("expected ErrLockLost for stale holder, got %v", err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("new owner release: %v", err)
	}
}

func TestLocker_AcquireWait(t *testing.T) {
	client, _ := testutil.Open(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "planexec-lock", time.Minute)

	lock, err := locker.Acquire(ctx, "exec-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		waited, err := locker.AcquireWait(ctx, "exec-1", 5*time.Millisecond)
		if err == nil {
			_ = waited.Release(ctx)
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter should acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not acquire in time")
	}
}

func TestDedupeCache_ClaimOncePerWindow(t *testing.T) {
	client, mini := testutil.Open(t)
	ctx := context.Background()
	cache := redis.NewDedupeCache(client, "metrics-dedupe", time.Minute)

	won, err := cache.Claim(ctx, "running-count:acct-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !won {
		t.Fatal("first claim should win")
	}

	won, err = cache.Claim(ctx, "running-count:acct-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if won {
		t.Fatal("second claim within the window must lose")
	}

	mini.FastForward(2 * time.Minute)

	won, err = cache.Claim(ctx, "running-count:acct-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !won {
		t.Fatal("claim after window expiry should win again")
	}
}
