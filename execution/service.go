package execution

import (
	"context"
	"time"

	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/status"
)

// AdvisoryLocker is the narrow locking surface the service needs for
// its serialized recompute path. The redis locker satisfies it through
// a small adapter in the engine wiring.
type AdvisoryLocker interface {
	// WithLock runs fn while holding the named lock, waiting for it if
	// another holder has it.
	WithLock(ctx context.Context, name string, fn func() error) error
}

// Service owns plan execution status semantics: it recomputes the
// plan-level status from node execution statuses, commits transitions
// through the store's conditional update, and fans committed
// transitions out to observers and wait notifiers.
type Service struct {
	store   *Store
	tracker NodeTracker
	log     *logger.Logger

	locker   AdvisoryLocker
	notifier WaitNotifier

	observers []StatusUpdateObserver
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithAdvisoryLocker enables the serialized recompute path. Without it
// CalculateAndUpdateRunningStatusUnderLock degrades to the lock-free
// variant, which is still race-safe through the conditional update.
func WithAdvisoryLocker(l AdvisoryLocker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

// WithWaitNotifier resolves blocked completion waiters on every
// terminal commit.
func WithWaitNotifier(n WaitNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// NewService creates the plan execution service.
func NewService(store *Store, tracker NodeTracker, log *logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		tracker: tracker,
		log:     log.WithComponent("execution-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterObserver adds a status update observer. Observers run
// synchronously in registration order after each committed transition;
// register during wiring, before the service is shared.
func (s *Service) RegisterObserver(obs StatusUpdateObserver) {
	s.observers = append(s.observers, obs)
}

// Store exposes the underlying store for direct reads.
func (s *Service) Store() *Store { return s.store }

// CalculateStatus derives the plan-level status from the current node
// execution statuses. When the plan has no node executions yet the
// execution's stored status is returned unchanged.
func (s *Service) CalculateStatus(ctx context.Context, planExecutionID string) (status.Status, error) {
	return s.CalculateStatusExcluding(ctx, planExecutionID, "")
}

// CalculateStatusExcluding is CalculateStatus with one node execution
// left out of the aggregation. Callers use it while that node's own
// transition is still in flight; a terminal result computed without it
// cannot be trusted, which is why the recompute paths downgrade it.
func (s *Service) CalculateStatusExcluding(ctx context.Context, planExecutionID, excludeNodeExecutionID string) (status.Status, error) {
	statuses, err := s.tracker.FetchNodeStatuses(ctx, planExecutionID, excludeNodeExecutionID)
	if err != nil {
		return "", err
	}

	calculated, ok := status.Calculate(statuses)
	if !ok {
		return s.store.GetStatus(ctx, planExecutionID)
	}
	return calculated, nil
}

// UpdateStatus commits an externally requested transition (abort,
// pause, resume) through the conditional update and notifies observers
// when it lands. Returns whether the transition was committed.
func (s *Service) UpdateStatus(ctx context.Context, planExecutionID string, newStatus status.Status) (bool, error) {
	committed, err := s.store.UpdateStatus(ctx, planExecutionID, newStatus, nil)
	if err != nil {
		return false, err
	}
	if committed {
		s.notifyCommitted(ctx, planExecutionID, newStatus)
	}
	return committed, nil
}

// UpdateStatusForceful bypasses the predecessor check, for
// administrative repair of stuck executions.
func (s *Service) UpdateStatusForceful(ctx context.Context, planExecutionID string, newStatus status.Status) error {
	if err := s.store.UpdateStatusForceful(ctx, planExecutionID, newStatus, nil); err != nil {
		return err
	}
	s.notifyCommitted(ctx, planExecutionID, newStatus)
	return nil
}

// MarkErrored forces the execution into ERRORED when orchestration
// itself fails, and notifies observers.
func (s *Service) MarkErrored(ctx context.Context, planExecutionID string) error {
	if err := s.store.MarkErrored(ctx, planExecutionID); err != nil {
		return err
	}
	s.notifyCommitted(ctx, planExecutionID, status.Errored)
	return nil
}

// UpdateCalculatedStatus recomputes the aggregate status and commits it
// conditionally. Returns the calculated status and whether the commit
// landed; a lost race leaves the row to the concurrent winner.
func (s *Service) UpdateCalculatedStatus(ctx context.Context, planExecutionID string) (status.Status, bool, error) {
	return s.recompute(ctx, planExecutionID, "")
}

// CalculateAndUpdateRunningStatus recomputes the aggregate status with
// one in-flight node execution excluded. A terminal aggregate is
// downgraded to RUNNING because the excluded node has not finished
// moving yet.
func (s *Service) CalculateAndUpdateRunningStatus(ctx context.Context, planExecutionID, excludeNodeExecutionID string) (status.Status, bool, error) {
	return s.recompute(ctx, planExecutionID, excludeNodeExecutionID)
}

// CalculateAndUpdateRunningStatusUnderLock runs the excluded recompute
// while holding the per-execution advisory lock, serializing it with
// other recomputes of the same execution.
func (s *Service) CalculateAndUpdateRunningStatusUnderLock(ctx context.Context, planExecutionID, excludeNodeExecutionID string) (status.Status, bool, error) {
	if s.locker == nil {
		return s.recompute(ctx, planExecutionID, excludeNodeExecutionID)
	}

	var (
		result    status.Status
		committed bool
	)
	err := s.locker.WithLock(ctx, "plan-execution:"+planExecutionID, func() error {
		var lockErr error
		result, committed, lockErr = s.recompute(ctx, planExecutionID, excludeNodeExecutionID)
		return lockErr
	})
	if err != nil {
		return "", false, err
	}
	return result, committed, nil
}

func (s *Service) recompute(ctx context.Context, planExecutionID, excludeNodeExecutionID string) (status.Status, bool, error) {
	calculated, err := s.CalculateStatusExcluding(ctx, planExecutionID, excludeNodeExecutionID)
	if err != nil {
		return "", false, err
	}
	if excludeNodeExecutionID != "" {
		calculated = status.DowngradeTerminal(calculated)
	}

	current, err := s.store.GetStatus(ctx, planExecutionID)
	if err != nil {
		return "", false, err
	}
	if current == calculated {
		return calculated, false, nil
	}

	committed, err := s.store.UpdateStatus(ctx, planExecutionID, calculated, nil)
	if err != nil {
		return "", false, err
	}
	if committed {
		s.notifyCommitted(ctx, planExecutionID, calculated)
	}
	return calculated, committed, nil
}

// notifyCommitted loads the notification context and fans the committed
// transition out. Observer and notifier failures are logged, never
// propagated; the transition is already durable.
func (s *Service) notifyCommitted(ctx context.Context, planExecutionID string, newStatus status.Status) {
	event := StatusUpdateEvent{
		PlanExecutionID: planExecutionID,
		Status:          newStatus,
		OccurredAt:      time.Now().UTC(),
	}

	pe, err := s.store.GetWithFieldsIncluded(ctx, planExecutionID,
		"id", "plan_id", "account_id", "org_id", "project_id", "pipeline_id",
		"metadata", "setup_abstractions")
	if err != nil {
		s.log.Warn("Could not load execution for status notification",
			logger.ErrorFields("notify", err))
	} else {
		event.PlanID = pe.PlanID
		event.AccountID = pe.AccountID
		event.OrgID = pe.OrgID
		event.ProjectID = pe.ProjectID
		event.PipelineID = pe.PipelineID
		event.Metadata = pe.Metadata
		event.SetupAbstractions = pe.SetupAbstractions
	}

	for _, obs := range s.observers {
		if err := obs.OnStatusUpdate(ctx, event); err != nil {
			s.log.Warn("Status update observer failed", logger.Fields(
				logger.FieldPlanExecutionID, planExecutionID,
				logger.FieldStatus, newStatus.String(),
				logger.FieldError, err.Error(),
			))
		}
	}

	if newStatus.IsTerminal() && s.notifier != nil {
		s.notifier.ResolveAll(ctx, CompletionKey(planExecutionID), newStatus)
	}
}
