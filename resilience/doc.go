// Package resilience provides the shared retry policy and concurrency
// limiting used by the engine's store layer. Bounded retries with
// exponential backoff guard batched deletes and other store mutations
// that may transiently fail; the bulkhead bounds concurrent cleanup
// batches.
package resilience
