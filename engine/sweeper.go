package engine

import (
	"context"
	"time"

	"github.com/kbukum/planengine/config"
	"github.com/kbukum/planengine/execution"
	"github.com/kbukum/planengine/logger"
)

// Sweeper periodically deletes terminal plan executions whose retention
// TTL has passed. Deletion goes through the execution store's batched
// cleanup path, so cleanup observers see every swept batch.
type Sweeper struct {
	store *execution.Store
	cfg   config.CleanupConfig
	log   *logger.Logger
}

// NewSweeper creates a retention sweeper.
func NewSweeper(store *execution.Store, cfg config.CleanupConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, log: log.WithComponent("retention-sweeper")}
}

// SweepOnce collects currently expired executions and deletes them.
// Returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.store.FindExpiredIds(ctx, time.Now().UTC(), 0)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.store.DeleteAllByIds(ctx, ids, s.cfg.RetainDetails); err != nil {
		return 0, err
	}
	s.log.Info("Expired plan executions removed", logger.Fields(logger.FieldBatch, len(ids)))
	return len(ids), nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.cfg.SweepIntervalDuration()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn("Retention sweep failed", logger.ErrorFields("sweep", err))
			}
		}
	}
}
