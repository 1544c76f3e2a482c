package execution

import (
	"context"
	"time"

	"github.com/kbukum/planengine/database"
	"github.com/kbukum/planengine/status"
)

// NodeTracker supplies the node execution statuses the service
// aggregates into a plan-level status. Implementations must exclude
// superseded retry instances so only the latest attempt per node
// contributes.
type NodeTracker interface {
	// FetchNodeStatuses returns the statuses of all current node
	// executions under the plan execution. When excludeNodeExecutionID
	// is non-empty that node execution is left out of the result.
	FetchNodeStatuses(ctx context.Context, planExecutionID, excludeNodeExecutionID string) ([]status.Status, error)
}

// WaitNotifier resolves callers blocked on an execution reaching a
// terminal status. ResolveAll is invoked once per terminal commit with
// the execution's completion correlation key.
type WaitNotifier interface {
	ResolveAll(ctx context.Context, correlationKey string, final status.Status)
}

// StatusUpdateEvent is the notification payload handed to observers
// after a status transition has been committed.
type StatusUpdateEvent struct {
	PlanExecutionID   string           `json:"planExecutionId"`
	PlanID            string           `json:"planId"`
	AccountID         string           `json:"accountId,omitempty"`
	OrgID             string           `json:"orgId,omitempty"`
	ProjectID         string           `json:"projectId,omitempty"`
	PipelineID        string           `json:"pipelineId,omitempty"`
	OldStatus         status.Status    `json:"oldStatus,omitempty"`
	Status            status.Status    `json:"status"`
	Metadata          database.JSONMap `json:"metadata,omitempty"`
	SetupAbstractions database.JSONMap `json:"setupAbstractions,omitempty"`
	OccurredAt        time.Time        `json:"occurredAt"`
}

// StatusUpdateObserver is notified synchronously, in registration
// order, after each committed plan execution status transition.
// Observer failures are logged and never fail the transition.
type StatusUpdateObserver interface {
	OnStatusUpdate(ctx context.Context, event StatusUpdateEvent) error
}

// CleanupObserver is notified for each batch of plan executions about
// to be deleted, before the rows are removed.
type CleanupObserver interface {
	OnDeleting(ctx context.Context, executions []PlanExecution, retainDetails bool) error
}

// CompletionKey is the correlation key wait notifiers are resolved
// under when the given plan execution reaches a terminal status.
func CompletionKey(planExecutionID string) string {
	return "plan-execution-done:" + planExecutionID
}
