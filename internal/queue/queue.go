package queue

import "context"

// Queue is the contract both the AMQP adapter and the in-memory fallback
// satisfy: publish a priority-tagged task, report introspectable stats.
type Queue interface {
	Publish(ctx context.Context, task Task, priority int) error
	Stats(ctx context.Context) (QueueStats, error)
	Close() error
}
