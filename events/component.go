package events

import (
	"context"

	"github.com/kbukum/planengine/component"
	"github.com/kbukum/planengine/execution"
)

// compile-time assertions — Publisher IS the observer
var (
	_ execution.StatusUpdateObserver = (*Publisher)(nil)
	_ execution.CleanupObserver      = (*Publisher)(nil)
	_ component.Component            = (*Publisher)(nil)
)

// Name implements component.Component.
func (p *Publisher) Name() string { return "events-publisher" }

// Start implements component.Component. The kafka-go writer connects
// lazily on first write, so there is nothing to do here.
func (p *Publisher) Start(_ context.Context) error { return nil }

// Stop implements component.Component.
func (p *Publisher) Stop(_ context.Context) error { return p.Close() }

// Health implements component.Component.
func (p *Publisher) Health(_ context.Context) component.Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return component.Health{Name: p.Name(), Status: component.StatusUnhealthy, Message: "publisher closed"}
	}
	return component.Health{Name: p.Name(), Status: component.StatusHealthy}
}
