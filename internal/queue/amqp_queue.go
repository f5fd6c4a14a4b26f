package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue is the durable priority queue named "test_queue" (§4.4): x-max-
// priority=10, persistent delivery, passive-then-conditional-active declare
// so a misconfigured queue never gets silently re-declared with different
// arguments.
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
	maxPrio int
}

func NewAMQPQueue(url, name string, maxPriority int) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	q := &AMQPQueue{conn: conn, channel: ch, name: name, maxPrio: maxPriority}
	if err := q.ensureQueue(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return q, nil
}

// ensureQueue passively declares first; only actively declares with
// x-max-priority if the passive declare fails because the queue does not
// yet exist. An existing queue with different arguments is left untouched.
func (q *AMQPQueue) ensureQueue() error {
	_, err := q.channel.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err == nil {
		return nil
	}
	var amqpErr *amqp.Error
	if !errors.As(err, &amqpErr) || amqpErr.Code != amqp.NotFound {
		return fmt.Errorf("amqp passive declare: %w", err)
	}

	slog.Info("queue: test_queue not found, declaring", "name", q.name)
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel after passive-declare miss: %w", err)
	}
	q.channel = ch

	args := amqp.Table{"x-max-priority": q.maxPrio}
	_, err = q.channel.QueueDeclare(q.name, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, task Task, priority int) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return q.channel.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     uint8(ClampPriority(priority)),
		Body:         body,
	})
}

func (q *AMQPQueue) Stats(ctx context.Context) (QueueStats, error) {
	info, err := q.channel.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return QueueStats{MessageCount: info.Messages, ConsumerCount: info.Consumers}, nil
}

func (q *AMQPQueue) Close() error {
	q.channel.Close()
	return q.conn.Close()
}
