package execution

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/planengine/logger"
)

// publishDedupeWindow suppresses duplicate per-account gauge points
// when several engine instances publish on overlapping schedules.
const publishDedupeWindow = 45 * time.Second

// PublishClaimer decides whether this instance owns a metric point for
// the current window. The redis dedupe cache satisfies it.
type PublishClaimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// ActiveCountPublisher periodically records the number of non-terminal
// plan executions per account as a gauge. Each account/window point is
// claimed through the dedupe cache first so a fleet of instances emits
// it once.
type ActiveCountPublisher struct {
	store   *Store
	claimer PublishClaimer
	gauge   metric.Int64Gauge
	log     *logger.Logger
}

// NewActiveCountPublisher creates the publisher on the given meter.
func NewActiveCountPublisher(store *Store, claimer PublishClaimer, meter metric.Meter, log *logger.Logger) (*ActiveCountPublisher, error) {
	gauge, err := meter.Int64Gauge("plan_executions_active",
		metric.WithDescription("Non-terminal plan executions per account"))
	if err != nil {
		return nil, err
	}
	return &ActiveCountPublisher{
		store:   store,
		claimer: claimer,
		gauge:   gauge,
		log:     log.WithComponent("active-count-publisher"),
	}, nil
}

// Publish aggregates active counts per account and records one gauge
// point per account this instance wins the claim for. Returns how many
// points were recorded.
func (p *ActiveCountPublisher) Publish(ctx context.Context) (int, error) {
	counts, err := p.store.AggregateActiveCountPerAccount(ctx)
	if err != nil {
		return 0, err
	}

	window := time.Now().UTC().Truncate(publishDedupeWindow).Unix()
	recorded := 0
	for accountID, n := range counts {
		key := publishKey(accountID, window)
		won, err := p.claimer.Claim(ctx, key)
		if err != nil {
			p.log.Warn("Gauge claim failed, recording anyway", logger.Fields(
				logger.FieldAccountID, accountID,
				logger.FieldError, err.Error(),
			))
			won = true
		}
		if !won {
			continue
		}

		p.gauge.Record(ctx, n, metric.WithAttributes(
			attribute.String("account_id", accountID),
		))
		recorded++
	}
	return recorded, nil
}

// Run publishes on the given interval until the context is cancelled.
func (p *ActiveCountPublisher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = publishDedupeWindow
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Publish(ctx); err != nil {
				p.log.Warn("Gauge publish failed", logger.ErrorFields("publish", err))
			}
		}
	}
}

func publishKey(accountID string, window int64) string {
	return "active-count:" + accountID + ":" + strconv.FormatInt(window, 10)
}
