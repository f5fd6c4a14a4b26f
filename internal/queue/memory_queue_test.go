package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_PublishDeliversToHandler(t *testing.T) {
	var mu sync.Mutex
	var received []Task

	done := make(chan struct{}, 1)
	q := NewMemoryQueue(1, func(task Task) {
		mu.Lock()
		received = append(received, task)
		mu.Unlock()
		done <- struct{}{}
	})
	defer q.Close()

	err := q.Publish(context.Background(), Task{TaskID: "t1", Image: "img:1"}, 5)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler to run")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "t1", received[0].TaskID)
}

func TestMemoryQueue_StatsReportsBacklogAndWorkers(t *testing.T) {
	q := NewMemoryQueue(2, nil)
	defer q.Close()

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ConsumerCount)
	assert.Equal(t, 0, stats.MessageCount)
}

func TestMemoryQueue_PublishFailsWhenFull(t *testing.T) {
	// Zero workers: nothing drains the channel, so it fills up fast.
	q := &MemoryQueue{items: make(chan queuedTask, 1), workers: 0}

	require.NoError(t, q.Publish(context.Background(), Task{TaskID: "a"}, 1))
	err := q.Publish(context.Background(), Task{TaskID: "b"}, 1)
	assert.Error(t, err, "publish should fail once the bounded channel is full")
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, ClampPriority(-5))
	assert.Equal(t, 1, ClampPriority(0))
	assert.Equal(t, 5, ClampPriority(5))
	assert.Equal(t, 10, ClampPriority(11))
	assert.Equal(t, 10, ClampPriority(10))
}
