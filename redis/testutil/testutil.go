// Package testutil provides an in-memory Redis (miniredis) for tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/redis"
)

// Open starts a miniredis server and returns a wrapped client plus the
// server handle (for FastForward in TTL tests). Both are cleaned up
// when the test finishes.
func Open(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	client := redis.NewFromClient(rdb, logger.Nop())
	t.Cleanup(func() { _ = client.Close() })

	return client, mini
}
