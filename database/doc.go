// Package database provides the engine's persistence layer built on
// GORM: connection pooling with bounded connect retries, a zerolog
// query logger, auto-migration for the engine tables, and translation
// of store errors into the engine's error taxonomy (NotFound,
// retryable transient errors).
package database
