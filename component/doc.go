// Package component defines the lifecycle interface implemented by the
// engine's infrastructure pieces (database, redis, event publisher) and
// a registry that starts them in dependency order and stops them in
// reverse.
package component
