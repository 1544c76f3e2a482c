// Package events publishes committed plan execution status transitions
// and cleanup notifications to Kafka. The publisher implements the
// execution package's observer interfaces, so it plugs into the service
// and store without either knowing about the broker.
package events
