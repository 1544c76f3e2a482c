package plan

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/planengine/database"
	apperrors "github.com/kbukum/planengine/errors"
	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/resilience"
)

// deleteBatchSize bounds how many ids a single bulk delete carries.
const deleteBatchSize = 1000

// Store persists plans and their nodes.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewStore creates a plan store.
func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log.WithComponent("plan-store")}
}

// Save persists all nodes belonging to the plan first, then the Plan
// record itself only if no record with that id already exists. A
// re-save with the same id is a no-op, so retrying the same save call
// never duplicates graph rows. Returns the stored Plan.
func (s *Store) Save(ctx context.Context, p *Plan) (*Plan, error) {
	if p.ID == "" {
		return nil, apperrors.MissingField("plan.id")
	}

	for i := range p.Nodes {
		p.Nodes[i].PlanID = p.ID
	}
	if len(p.NodeIDs) == 0 && len(p.Nodes) > 0 {
		ids := make(database.StringSlice, 0, len(p.Nodes))
		for _, n := range p.Nodes {
			ids = append(ids, n.ID)
		}
		p.NodeIDs = ids
	}

	if len(p.Nodes) > 0 {
		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&p.Nodes).Error; err != nil {
			return nil, database.FromDatabase(err, "node", "")
		}
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return nil, database.FromDatabase(res.Error, "plan", p.ID)
	}
	if res.RowsAffected == 0 {
		// Save-if-absent: the plan was stored by an earlier attempt.
		s.log.Debug("Plan already exists, save is a no-op", logger.Fields(logger.FieldPlanID, p.ID))
		return s.FetchPlan(ctx, p.ID)
	}

	s.log.Debug("Plan saved", logger.Fields(logger.FieldPlanID, p.ID, "nodes", len(p.Nodes)))
	return p, nil
}

// FetchPlan returns the plan with the given id, or NotFound.
func (s *Store) FetchPlan(ctx context.Context, id string) (*Plan, error) {
	var p Plan
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, database.FromDatabase(err, "plan", id)
	}
	return &p, nil
}

// FetchPlanOptional returns the plan with the given id, or found=false
// when absent.
func (s *Store) FetchPlanOptional(ctx context.Context, id string) (*Plan, bool, error) {
	p, err := s.FetchPlan(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return p, true, nil
}

// FetchNode returns a single node by id, independent of its parent plan.
func (s *Store) FetchNode(ctx context.Context, nodeID string) (*Node, error) {
	var n Node
	if err := s.db.WithContext(ctx).First(&n, "id = ?", nodeID).Error; err != nil {
		return nil, database.FromDatabase(err, "node", nodeID)
	}
	return &n, nil
}

// FetchAllNodes returns the nodes with the given ids. Missing ids are
// simply absent from the result; callers that need all of them check
// the length.
func (s *Store) FetchAllNodes(ctx context.Context, nodeIDs []string) ([]Node, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	var nodes []Node
	if err := s.db.WithContext(ctx).Where("id IN ?", nodeIDs).Find(&nodes).Error; err != nil {
		return nil, database.FromDatabase(err, "node", "")
	}
	return nodes, nil
}

// FetchNodes returns all nodes belonging to a plan.
func (s *Store) FetchNodes(ctx context.Context, planID string) ([]Node, error) {
	var nodes []Node
	if err := s.db.WithContext(ctx).Where("plan_id = ?", planID).Find(&nodes).Error; err != nil {
		return nil, database.FromDatabase(err, "node", "")
	}
	return nodes, nil
}

// SaveIdentityNodesForMatrix appends freshly discovered matrix/fan-out
// node instances to an existing plan. Each node is persisted with the
// plan id and the plan's node id list is extended to include it.
func (s *Store) SaveIdentityNodesForMatrix(ctx context.Context, nodes []Node, planID string) ([]Node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Plan
		if err := tx.First(&p, "id = ?", planID).Error; err != nil {
			return err
		}

		for i := range nodes {
			nodes[i].PlanID = planID
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&nodes).Error; err != nil {
			return err
		}

		existing := make(map[string]bool, len(p.NodeIDs))
		for _, id := range p.NodeIDs {
			existing[id] = true
		}
		for _, n := range nodes {
			if !existing[n.ID] {
				p.NodeIDs = append(p.NodeIDs, n.ID)
			}
		}
		return tx.Model(&Plan{}).Where("id = ?", planID).
			Update("node_ids", p.NodeIDs).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("plan", planID)
		}
		return nil, database.FromDatabase(err, "plan", planID)
	}

	s.log.Debug("Matrix nodes appended", logger.Fields(logger.FieldPlanID, planID, "nodes", len(nodes)))
	return nodes, nil
}

// DeleteNodesForGivenIds deletes node rows in bounded batches under the
// shared retry policy. The underlying store may transiently reject
// large batched deletes; only the bulk delete itself is retried.
func (s *Store) DeleteNodesForGivenIds(ctx context.Context, ids []string) error {
	return s.batchDelete(ctx, ids, "node", &Node{})
}

// DeletePlansForGivenIds deletes plan rows in bounded batches under the
// shared retry policy.
func (s *Store) DeletePlansForGivenIds(ctx context.Context, ids []string) error {
	return s.batchDelete(ctx, ids, "plan", &Plan{})
}

func (s *Store) batchDelete(ctx context.Context, ids []string, resource string, model interface{}) error {
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		err := resilience.RetryFunc(ctx, s.retryConfig(resource), func() error {
			if err := s.db.WithContext(ctx).Where("id IN ?", batch).Delete(model).Error; err != nil {
				return database.FromDatabase(err, resource, "")
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) retryConfig(resource string) resilience.RetryConfig {
	cfg := resilience.StoreRetryConfig()
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		s.log.Warn("Retrying batched delete", logger.Fields(
			"resource", resource,
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"backoff", backoff.String(),
		))
	}
	return cfg
}
