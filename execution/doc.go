// Package execution tracks the run-time lifecycle of a plan: the
// PlanExecution aggregate, its metadata side record, the store that
// commits status transitions through atomic conditional updates, and
// the service that recomputes the aggregate status from node execution
// statuses and fans committed transitions out to observers.
//
// There is no lock or transaction around a status transition. Safety
// comes from the conditional "update where current status is an
// allowed predecessor" write: of two concurrent conflicting callers
// exactly one wins, and the loser's write affects zero rows and is
// treated as an expected no-op, not an error.
package execution
