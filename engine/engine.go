package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/kbukum/planengine/component"
	"github.com/kbukum/planengine/config"
	"github.com/kbukum/planengine/database"
	"github.com/kbukum/planengine/events"
	"github.com/kbukum/planengine/execution"
	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/plan"
	"github.com/kbukum/planengine/redis"
)

// Engine wires the plan execution engine together. Construct it with
// New, Start it, use the store and service accessors, and Stop it on
// shutdown. Stores and the service are only usable after Start.
type Engine struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *component.Registry

	dbComponent    *database.Component
	redisComponent *redis.Component
	publisher      *events.Publisher

	tracker  execution.NodeTracker
	notifier execution.WaitNotifier

	planStore   *plan.Store
	execStore   *execution.Store
	execService *execution.Service
	sweeper     *Sweeper
	gauges      *execution.ActiveCountPublisher

	cancelBackground context.CancelFunc
	background       sync.WaitGroup
	started          bool
	mu               sync.Mutex
}

// Option customizes engine construction.
type Option func(*Engine)

// WithWaitNotifier installs the notifier resolved on terminal commits.
func WithWaitNotifier(n execution.WaitNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New creates an engine from the given configuration. tracker supplies
// node execution statuses for aggregation; pass the caller's node
// orchestration layer.
func New(cfg *config.Config, tracker execution.NodeTracker, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("node tracker is required")
	}

	log := logger.New(&cfg.Logging, cfg.Name)

	e := &Engine{
		cfg:      cfg,
		log:      log.WithComponent("engine"),
		registry: component.NewRegistry(log),
		tracker:  tracker,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.dbComponent = database.NewComponent(cfg.Database, log).
		WithAutoMigrate(&plan.Plan{}, &plan.Node{}, &execution.PlanExecution{}, &execution.Metadata{})
	if err := e.registry.Register(e.dbComponent); err != nil {
		return nil, err
	}

	e.redisComponent = redis.NewComponent(cfg.Redis, log)
	if err := e.registry.Register(e.redisComponent); err != nil {
		return nil, err
	}

	if cfg.Events.Enabled {
		publisher, err := events.NewPublisher(cfg.Events, log)
		if err != nil {
			return nil, fmt.Errorf("engine events: %w", err)
		}
		e.publisher = publisher
		if err := e.registry.Register(publisher); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Start brings up all components and assembles the stores and service.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}

	if err := e.registry.StartAll(ctx); err != nil {
		return err
	}

	db := e.dbComponent.DB().GormDB
	redisClient := e.redisComponent.Client()

	e.planStore = plan.NewStore(db, e.log)
	e.execStore = execution.NewStore(db, e.log)

	locker := redis.NewLocker(redisClient, "planengine:lock", 30*time.Second)
	e.execService = execution.NewService(e.execStore, e.tracker, e.log,
		execution.WithAdvisoryLocker(&lockerAdapter{locker: locker}),
		execution.WithWaitNotifier(e.notifier),
	)

	if e.publisher != nil {
		e.execService.RegisterObserver(e.publisher)
		e.execStore.RegisterCleanupObserver(e.publisher)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	e.cancelBackground = cancel

	if e.cfg.Cleanup.Enabled {
		e.sweeper = NewSweeper(e.execStore, e.cfg.Cleanup, e.log)
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			e.sweeper.Run(bgCtx)
		}()
	}

	if e.cfg.Metrics.Enabled {
		dedupe := redis.NewDedupeCache(redisClient, "planengine:gauge", e.cfg.Metrics.PublishIntervalDuration())
		gauges, err := execution.NewActiveCountPublisher(
			e.execStore, dedupe, otel.GetMeterProvider().Meter("planengine"), e.log)
		if err != nil {
			cancel()
			e.background.Wait()
			return fmt.Errorf("engine metrics: %w", err)
		}
		e.gauges = gauges
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			gauges.Run(bgCtx, e.cfg.Metrics.PublishIntervalDuration())
		}()
	}

	e.started = true
	e.log.Info("Engine started", logger.Fields(
		"environment", e.cfg.Environment,
		"events", e.publisher != nil,
		"cleanup", e.cfg.Cleanup.Enabled,
	))
	return nil
}

// Stop cancels background work and shuts components down in reverse
// start order.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}

	e.cancelBackground()
	e.background.Wait()
	e.started = false
	return e.registry.StopAll(ctx)
}

// PlanStore returns the plan graph store.
func (e *Engine) PlanStore() *plan.Store { return e.planStore }

// ExecutionStore returns the plan execution store.
func (e *Engine) ExecutionStore() *execution.Store { return e.execStore }

// ExecutionService returns the status service.
func (e *Engine) ExecutionService() *execution.Service { return e.execService }

// Sweeper returns the retention sweeper, or nil when cleanup is disabled.
func (e *Engine) Sweeper() *Sweeper { return e.sweeper }

// Health reports component health.
func (e *Engine) Health(ctx context.Context) []component.Health {
	return e.registry.HealthAll(ctx)
}
