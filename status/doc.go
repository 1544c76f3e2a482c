// Package status defines the plan execution status state machine: the
// status values, the terminal set, the allowed-predecessor set for each
// transition target, and the deterministic rule that aggregates node
// execution statuses into a plan-level status. Everything here is pure;
// the conditional persistence of transitions lives in the execution
// package.
package status
