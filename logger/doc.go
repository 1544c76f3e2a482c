// Package logger provides structured logging for the plan engine,
// built on zerolog. It supports JSON and console output formats and
// carries standard engine field keys (plan id, plan execution id,
// status) so log lines from every component stay greppable.
package logger
