package execution

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/planengine/database"
	apperrors "github.com/kbukum/planengine/errors"
	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/resilience"
	"github.com/kbukum/planengine/status"
)

const (
	// cleanupBatchSize bounds one cleanup delete round.
	cleanupBatchSize = 5000
	// streamBatchSize is the page size for streaming status scans.
	streamBatchSize = 500
)

// projectionWithoutBlobs is the column set for reads that do not need
// the metadata payloads.
var projectionWithoutBlobs = []string{
	"id", "plan_id", "account_id", "org_id", "project_id", "pipeline_id",
	"status", "created_at", "last_updated_at", "start_ts", "end_ts", "valid_until",
}

// Store persists plan executions and commits their status transitions.
//
// All status writes go through a conditional update: the row is only
// mutated when its current status is an allowed predecessor of the
// target. A write that matches zero rows lost a concurrent race (or
// targeted a missing row) and is reported as committed=false, never as
// an error.
type Store struct {
	db  *gorm.DB
	log *logger.Logger

	cleanupObservers []CleanupObserver
	cleanupGuard     *resilience.Bulkhead
	cleanupBatch     int
}

// NewStore creates a plan execution store.
func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{
		db:           db,
		log:          log.WithComponent("execution-store"),
		cleanupBatch: cleanupBatchSize,
		cleanupGuard: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "execution-cleanup",
			MaxConcurrent: 2,
			MaxWait:       30 * time.Second,
		}),
	}
}

// RegisterCleanupObserver adds an observer invoked for every batch of
// executions about to be deleted. Not safe for concurrent use with
// DeleteAllByIds; register during wiring.
func (s *Store) RegisterCleanupObserver(obs CleanupObserver) {
	s.cleanupObservers = append(s.cleanupObservers, obs)
}

// Save persists a new plan execution. A missing status defaults to
// QUEUED; any other initial status is rejected. Re-saving an existing
// id is a no-op so retried submissions never duplicate rows.
func (s *Store) Save(ctx context.Context, pe *PlanExecution) (*PlanExecution, error) {
	if pe.ID == "" {
		return nil, apperrors.MissingField("planExecution.id")
	}
	if pe.PlanID == "" {
		return nil, apperrors.MissingField("planExecution.planId")
	}
	if pe.Status == "" {
		pe.Status = status.Queued
	}
	if pe.Status != status.Queued {
		return nil, apperrors.InvalidInput("status", "a plan execution starts in QUEUED")
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(pe)
	if res.Error != nil {
		return nil, database.FromDatabase(res.Error, "plan execution", pe.ID)
	}
	if res.RowsAffected == 0 {
		s.log.Debug("Plan execution already exists, save is a no-op",
			logger.Fields(logger.FieldPlanExecutionID, pe.ID))
		return s.Get(ctx, pe.ID)
	}
	return pe, nil
}

// SaveMetadata persists the 1:1 metadata side record for an execution.
func (s *Store) SaveMetadata(ctx context.Context, md *Metadata) error {
	if md.PlanExecutionID == "" {
		return apperrors.MissingField("metadata.planExecutionId")
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(md).Error; err != nil {
		return database.FromDatabase(err, "plan execution metadata", md.PlanExecutionID)
	}
	return nil
}

// Get returns the full plan execution row, or NotFound.
func (s *Store) Get(ctx context.Context, id string) (*PlanExecution, error) {
	var pe PlanExecution
	if err := s.db.WithContext(ctx).First(&pe, "id = ?", id).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", id)
	}
	return &pe, nil
}

// GetWithFieldsIncluded returns the execution with only the given
// columns populated, so hot paths avoid pulling the metadata blobs.
func (s *Store) GetWithFieldsIncluded(ctx context.Context, id string, fields ...string) (*PlanExecution, error) {
	var pe PlanExecution
	if err := s.db.WithContext(ctx).Select(fields).
		First(&pe, "id = ?", id).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", id)
	}
	return &pe, nil
}

// GetWithoutMetadata returns the execution without its metadata,
// governance, or setup payloads.
func (s *Store) GetWithoutMetadata(ctx context.Context, id string) (*PlanExecution, error) {
	return s.GetWithFieldsIncluded(ctx, id, projectionWithoutBlobs...)
}

// GetStatus returns only the current status of the execution.
func (s *Store) GetStatus(ctx context.Context, id string) (status.Status, error) {
	pe, err := s.GetWithFieldsIncluded(ctx, id, "id", "status")
	if err != nil {
		return "", err
	}
	return pe.Status, nil
}

// GetMetadata returns the metadata side record, or NotFound.
func (s *Store) GetMetadata(ctx context.Context, planExecutionID string) (*Metadata, error) {
	var md Metadata
	if err := s.db.WithContext(ctx).
		First(&md, "plan_execution_id = ?", planExecutionID).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution metadata", planExecutionID)
	}
	return &md, nil
}

// UpdateStatus commits a status transition only if the row's current
// status is an allowed predecessor of newStatus. Extra column updates
// may be supplied through mutations. Returns committed=false when the
// conditional write matched nothing; a lost race is expected under
// concurrent recomputation and is logged at warn, not failed.
func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus status.Status, mutations map[string]interface{}) (bool, error) {
	return s.commitStatus(ctx, id, newStatus, mutations, status.AllowedPredecessors(newStatus))
}

// UpdateStatusWithPredecessors is UpdateStatus with a caller-supplied
// predecessor set, for call sites that allow a narrower window than the
// lifecycle default.
func (s *Store) UpdateStatusWithPredecessors(ctx context.Context, id string, newStatus status.Status, mutations map[string]interface{}, allowed []status.Status) (bool, error) {
	return s.commitStatus(ctx, id, newStatus, mutations, allowed)
}

// UpdateStatusForceful writes newStatus unconditionally, bypassing the
// predecessor check. Used for administrative repair; a missing row is
// still NotFound.
func (s *Store) UpdateStatusForceful(ctx context.Context, id string, newStatus status.Status, mutations map[string]interface{}) error {
	if !newStatus.IsValid() {
		return apperrors.InvalidInput("status", "unknown status "+newStatus.String())
	}
	if newStatus == status.Queued {
		// Even a forced write cannot re-queue a run; QUEUED rows exist
		// only through Save.
		cur, err := s.GetStatus(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.InvalidTransition(cur.String(), newStatus.String())
	}
	res := s.db.WithContext(ctx).Model(&PlanExecution{}).
		Where("id = ?", id).
		Updates(s.statusUpdates(newStatus, mutations))
	if res.Error != nil {
		return database.FromDatabase(res.Error, "plan execution", id)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("plan execution", id)
	}
	s.log.Info("Plan execution status forced", logger.Fields(
		logger.FieldPlanExecutionID, id,
		logger.FieldStatus, newStatus.String(),
	))
	return nil
}

// MarkErrored forces the execution into ERRORED with its end timestamp
// set. This is the engine's last-resort transition when orchestration
// itself fails, so it does not go through the predecessor check.
func (s *Store) MarkErrored(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.UpdateStatusForceful(ctx, id, status.Errored, map[string]interface{}{
		"end_ts": &now,
	})
}

func (s *Store) commitStatus(ctx context.Context, id string, newStatus status.Status, mutations map[string]interface{}, allowed []status.Status) (bool, error) {
	if !newStatus.IsValid() {
		return false, apperrors.InvalidInput("status", "unknown status "+newStatus.String())
	}
	if len(allowed) == 0 {
		// QUEUED and other creation-only targets can never be entered
		// by transition.
		s.log.Warn("Status has no allowed predecessors, update skipped", logger.Fields(
			logger.FieldPlanExecutionID, id,
			logger.FieldStatus, newStatus.String(),
		))
		return false, nil
	}

	res := s.db.WithContext(ctx).Model(&PlanExecution{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(s.statusUpdates(newStatus, mutations))
	if res.Error != nil {
		return false, database.FromDatabase(res.Error, "plan execution", id)
	}
	if res.RowsAffected == 0 {
		s.log.Warn("Conditional status update matched no row, skipping", logger.Fields(
			logger.FieldPlanExecutionID, id,
			logger.FieldStatus, newStatus.String(),
		))
		return false, nil
	}

	s.log.Info("Plan execution status updated", logger.Fields(
		logger.FieldPlanExecutionID, id,
		logger.FieldStatus, newStatus.String(),
	))
	return true, nil
}

func (s *Store) statusUpdates(newStatus status.Status, mutations map[string]interface{}) map[string]interface{} {
	updates := map[string]interface{}{
		"status":          newStatus,
		"last_updated_at": time.Now().UTC(),
	}
	if newStatus == status.Running {
		now := time.Now().UTC()
		updates["start_ts"] = &now
	}
	if newStatus.IsTerminal() {
		now := time.Now().UTC()
		updates["end_ts"] = &now
	}
	for k, v := range mutations {
		updates[k] = v
	}
	return updates
}

// FindAllByIds returns the executions with the given ids, without
// metadata blobs. Missing ids are absent from the result.
func (s *Store) FindAllByIds(ctx context.Context, ids []string) ([]PlanExecution, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []PlanExecution
	if err := s.db.WithContext(ctx).Select(projectionWithoutBlobs).
		Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", "")
	}
	return out, nil
}

// FindByStatusWithProjections returns all executions currently in one
// of the given statuses, with only the requested columns populated.
func (s *Store) FindByStatusWithProjections(ctx context.Context, statuses []status.Status, fields ...string) ([]PlanExecution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if len(fields) == 0 {
		fields = projectionWithoutBlobs
	}
	var out []PlanExecution
	if err := s.db.WithContext(ctx).Select(fields).
		Where("status IN ?", statuses).Find(&out).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", "")
	}
	return out, nil
}

// FetchByStatusStreaming pages through all executions in the given
// statuses and hands each page to fn. Returning an error from fn stops
// the scan.
func (s *Store) FetchByStatusStreaming(ctx context.Context, statuses []status.Status, fn func(batch []PlanExecution) error) error {
	var page []PlanExecution
	res := s.db.WithContext(ctx).Select(projectionWithoutBlobs).
		Where("status IN ?", statuses).
		FindInBatches(&page, streamBatchSize, func(_ *gorm.DB, _ int) error {
			batch := make([]PlanExecution, len(page))
			copy(batch, page)
			return fn(batch)
		})
	if res.Error != nil {
		return database.FromDatabase(res.Error, "plan execution", "")
	}
	return nil
}

// CountRunningForPipelineInAccount counts active executions of one
// pipeline within an account, for concurrency admission decisions.
func (s *Store) CountRunningForPipelineInAccount(ctx context.Context, accountID, pipelineID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&PlanExecution{}).
		Where("account_id = ? AND pipeline_id = ? AND status IN ?",
			accountID, pipelineID, status.ActiveStatuses()).
		Count(&n).Error; err != nil {
		return 0, database.FromDatabase(err, "plan execution", "")
	}
	return n, nil
}

// FindNextQueuedInAccount returns the oldest QUEUED execution in the
// account, or nil when the account has no queued work.
func (s *Store) FindNextQueuedInAccount(ctx context.Context, accountID string) (*PlanExecution, error) {
	var out []PlanExecution
	if err := s.db.WithContext(ctx).Select(projectionWithoutBlobs).
		Where("account_id = ? AND status = ?", accountID, status.Queued).
		Order("created_at ASC").Limit(1).
		Find(&out).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", "")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// AggregateActiveCountPerAccount returns the number of non-terminal
// executions per account id, for gauge publication.
func (s *Store) AggregateActiveCountPerAccount(ctx context.Context) (map[string]int64, error) {
	type row struct {
		AccountID string
		N         int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&PlanExecution{}).
		Select("account_id, COUNT(*) AS n").
		Where("status IN ?", status.ActiveStatuses()).
		Group("account_id").
		Scan(&rows).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", "")
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.AccountID] = r.N
	}
	return counts, nil
}

// FindExpiredIds returns ids of terminal executions whose retention
// expiry has passed, oldest first, capped at limit. Executions without
// a TTL are kept forever.
func (s *Store) FindExpiredIds(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = cleanupBatchSize
	}
	var ids []string
	if err := s.db.WithContext(ctx).Model(&PlanExecution{}).
		Where("status IN ? AND valid_until IS NOT NULL AND valid_until <= ?",
			status.TerminalStatuses(), asOf).
		Order("valid_until ASC").Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, database.FromDatabase(err, "plan execution", "")
	}
	return ids, nil
}

// UpdateTTL sets the retention expiry on an execution.
func (s *Store) UpdateTTL(ctx context.Context, id string, validUntil time.Time) error {
	res := s.db.WithContext(ctx).Model(&PlanExecution{}).
		Where("id = ?", id).
		Update("valid_until", validUntil)
	if res.Error != nil {
		return database.FromDatabase(res.Error, "plan execution", id)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("plan execution", id)
	}
	return nil
}

// DeleteAllByIds removes plan executions and their metadata records in
// bounded batches. For each batch the registered cleanup observers run
// first, so dependent records can be removed (or retained, when
// retainDetails is set) before the execution rows disappear. An
// observer error aborts the batch before anything is deleted.
func (s *Store) DeleteAllByIds(ctx context.Context, ids []string, retainDetails bool) error {
	return s.cleanupGuard.Execute(ctx, func() error {
		for start := 0; start < len(ids); start += s.cleanupBatch {
			end := start + s.cleanupBatch
			if end > len(ids) {
				end = len(ids)
			}
			if err := s.deleteBatch(ctx, ids[start:end], retainDetails); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) deleteBatch(ctx context.Context, batch []string, retainDetails bool) error {
	if len(s.cleanupObservers) > 0 {
		executions, err := s.FindAllByIds(ctx, batch)
		if err != nil {
			return err
		}
		for _, obs := range s.cleanupObservers {
			if err := obs.OnDeleting(ctx, executions, retainDetails); err != nil {
				return err
			}
		}
	}

	err := resilience.RetryFunc(ctx, s.retryConfig(), func() error {
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("plan_execution_id IN ?", batch).Delete(&Metadata{}).Error; err != nil {
				return err
			}
			return tx.Where("id IN ?", batch).Delete(&PlanExecution{}).Error
		})
		if txErr != nil {
			return database.FromDatabase(txErr, "plan execution", "")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("Plan execution batch deleted", logger.Fields(logger.FieldBatch, len(batch)))
	return nil
}

func (s *Store) retryConfig() resilience.RetryConfig {
	cfg := resilience.StoreRetryConfig()
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		s.log.Warn("Retrying batched execution delete", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"backoff", backoff.String(),
		))
	}
	return cfg
}
