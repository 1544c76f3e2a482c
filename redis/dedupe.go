package redis

import (
	"context"
	"time"
)

// DedupeCache answers "has this key been claimed within the window?"
// using SETNX with a TTL. It deliberately caches only the claim marker,
// never domain state: the metrics publisher uses it so repeated callers
// within the same window do not re-publish the same gauge.
type DedupeCache struct {
	client *Client
	prefix string
	window time.Duration
}

// NewDedupeCache creates a DedupeCache with the given claim window.
func NewDedupeCache(client *Client, prefix string, window time.Duration) *DedupeCache {
	if window <= 0 {
		window = time.Minute
	}
	return &DedupeCache{client: client, prefix: prefix, window: window}
}

// Claim marks key as done for the current window. Returns true when the
// caller won the claim and should proceed, false when another caller
// already claimed it within the window.
func (d *DedupeCache) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+":"+key, 1, d.window)
}
