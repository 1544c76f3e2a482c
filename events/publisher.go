package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/planengine/execution"
	"github.com/kbukum/planengine/logger"
)

// messageWriter is the slice of kafka-go's Writer the publisher uses;
// tests substitute a recording fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher sends status transition and cleanup events to Kafka. It
// implements execution.StatusUpdateObserver and execution.CleanupObserver.
type Publisher struct {
	cfg    Config
	log    *logger.Logger
	writer messageWriter
	mu     sync.RWMutex
	closed bool
}

// CleanupEvent is the payload published when plan executions are
// removed by retention cleanup.
type CleanupEvent struct {
	PlanExecutionID string    `json:"planExecutionId"`
	PlanID          string    `json:"planId"`
	AccountID       string    `json:"accountId,omitempty"`
	RetainDetails   bool      `json:"retainDetails"`
	DeletedAt       time.Time `json:"deletedAt"`
}

// NewPublisher creates a Kafka-backed publisher. The underlying writer
// connects lazily on first publish.
func NewPublisher(cfg Config, log *logger.Logger) (*Publisher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("events publisher config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("events publishing is disabled")
	}

	p := &Publisher{cfg: cfg, log: log.WithComponent("events.publisher")}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: ParseDuration(cfg.BatchTimeout),
		WriteTimeout: ParseDuration(cfg.WriteTimeout),
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:  resolveCompression(cfg.Compression),
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			p.log.Error("writer: "+msg, map[string]interface{}{
				"args": fmt.Sprintf("%v", args),
			})
		}),
	}
	return p, nil
}

// newPublisherWithWriter wires a caller-supplied writer, for tests.
func newPublisherWithWriter(cfg Config, w messageWriter, log *logger.Logger) *Publisher {
	cfg.ApplyDefaults()
	return &Publisher{cfg: cfg, log: log.WithComponent("events.publisher"), writer: w}
}

// OnStatusUpdate publishes a committed status transition, keyed by plan
// execution id so per-execution ordering is preserved within the topic.
func (p *Publisher) OnStatusUpdate(ctx context.Context, event execution.StatusUpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	return p.write(ctx, kafkago.Message{
		Topic: p.cfg.StatusTopic,
		Key:   []byte(event.PlanExecutionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
}

// OnDeleting publishes one cleanup event per execution in the batch,
// before the rows are removed.
func (p *Publisher) OnDeleting(ctx context.Context, executions []execution.PlanExecution, retainDetails bool) error {
	if len(executions) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafkago.Message, 0, len(executions))
	for _, pe := range executions {
		data, err := json.Marshal(CleanupEvent{
			PlanExecutionID: pe.ID,
			PlanID:          pe.PlanID,
			AccountID:       pe.AccountID,
			RetainDetails:   retainDetails,
			DeletedAt:       now,
		})
		if err != nil {
			return fmt.Errorf("marshal cleanup event: %w", err)
		}
		msgs = append(msgs, kafkago.Message{
			Topic: p.cfg.CleanupTopic,
			Key:   []byte(pe.ID),
			Value: data,
			Headers: []kafkago.Header{
				{Key: "content-type", Value: []byte("application/json")},
			},
		})
	}
	return p.write(ctx, msgs...)
}

// write sends messages with bounded retry.
func (p *Publisher) write(ctx context.Context, msgs ...kafkago.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		if err := p.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.cfg.Retries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
				}
			}
		}
	}
	return fmt.Errorf("write after %d retries: %w", p.cfg.Retries, lastErr)
}

// Close shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("Events publisher closing")
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func resolveCompression(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return 0
	}
}
