// Package engine assembles the plan execution engine from its
// components: database and redis connections, the plan and execution
// stores, the status service with its observers, the Kafka event
// publisher, the retention sweeper, and the gauge publisher. Callers
// construct an Engine from a config.Config, Start it, and reach the
// stores and service through its accessors.
package engine
