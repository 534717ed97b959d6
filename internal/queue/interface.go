package queue

import (
	"context"
)

// MessageInterface is a delivered event awaiting settlement
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetEvent() *Event
}

// EventQueue is the interface for the vault event bus
type EventQueue interface {
	// Publish adds an event to the bus
	Publish(ctx context.Context, event *Event) error

	// Consume returns a channel of messages from the notification queue
	// Messages are delivered asynchronously as they arrive
	// The caller is responsible for acknowledging each message
	// Returns a channel that will be closed when the context is cancelled or an error occurs
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue connection
	Close() error

	// HealthCheck verifies the queue connection is healthy
	HealthCheck(ctx context.Context) error
}

var _ EventQueue = (*RabbitMQQueue)(nil)
var _ MessageInterface = (*Message)(nil)
