// Package redis provides the engine's Redis-backed coordination
// primitives: a client wrapper with pooling and lifecycle support, the
// per-plan-execution advisory lock used around read-recompute-write
// status sequences, and the TTL dedupe cache that keeps gauge metrics
// from being re-published within the same window.
package redis
