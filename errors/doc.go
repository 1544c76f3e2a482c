// Package errors provides unified error handling for the plan engine.
// It implements structured error types with machine-readable codes,
// HTTP status mapping for the layers above, and retryable detection.
package errors
