package msgworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewWorkerPool(2, 10)
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	ok := pool.TryDispatch(Job{
		Key:  "crm",
		Name: "messages.upsert",
		Handler: func(ctx context.Context) error {
			<-release
			return nil
		},
	})
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond, "dispatch must not wait for the handler")
}

func TestPool_SameKeyKeepsOrder(t *testing.T) {
	pool := NewWorkerPool(4, 100)
	pool.Start(context.Background())

	var (
		mu      sync.Mutex
		results []int
	)
	for i := 1; i <= 20; i++ {
		val := i
		require.True(t, pool.TryDispatch(Job{
			Key:  "crm",
			Name: "messages.upsert",
			Handler: func(ctx context.Context) error {
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		}))
	}
	pool.Stop()

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i + 1
	}
	assert.Equal(t, expected, results)
}

func TestPool_DropsWhenQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Start(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, pool.TryDispatch(Job{Key: "crm", Handler: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	noop := func(ctx context.Context) error { return nil }
	assert.True(t, pool.TryDispatch(Job{Key: "crm", Handler: noop}), "one slot in the queue")
	assert.False(t, pool.TryDispatch(Job{Key: "crm", Handler: noop}), "queue is full")

	close(release)
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(3), stats.TotalDispatched)
	assert.Equal(t, int64(1), stats.TotalDropped)
	assert.Equal(t, int64(2), stats.TotalProcessed)
}

func TestPool_DispatchWaitsForRoom(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, pool.TryDispatch(Job{Key: "crm", Handler: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	noop := func(ctx context.Context) error { return nil }
	require.True(t, pool.TryDispatch(Job{Key: "crm", Handler: noop}))

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, pool.Dispatch(short, Job{Key: "crm", Handler: noop}), "gives up when the wait expires")

	accepted := make(chan bool, 1)
	go func() {
		accepted <- pool.Dispatch(context.Background(), Job{Key: "crm", Handler: noop})
	}()
	close(release)
	select {
	case ok := <-accepted:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never got a slot")
	}
}

func TestPool_FailuresAreContained(t *testing.T) {
	pool := NewWorkerPool(1, 10)
	pool.Start(context.Background())

	ctx := context.Background()
	var ran int32
	require.True(t, pool.Dispatch(ctx, Job{Key: "crm", Name: "boom", Handler: func(ctx context.Context) error { panic("bad payload") }}))
	require.True(t, pool.Dispatch(ctx, Job{Key: "crm", Name: "fail", Handler: func(ctx context.Context) error { return errors.New("db down") }}))
	require.True(t, pool.Dispatch(ctx, Job{Key: "crm", Name: "ok", Handler: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}))
	pool.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran), "the worker survives a panicking job")
	stats := pool.GetStats()
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, int64(3), stats.TotalProcessed)
}

func TestPool_StoppedPoolRejects(t *testing.T) {
	pool := NewWorkerPool(2, 10)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	assert.False(t, pool.TryDispatch(Job{Key: "crm", Handler: func(ctx context.Context) error { return nil }}))
}

func TestPool_NotStartedRejects(t *testing.T) {
	pool := NewWorkerPool(2, 10)
	assert.False(t, pool.TryDispatch(Job{Key: "crm", Handler: func(ctx context.Context) error { return nil }}))
}

func TestPool_ConsistentHashing(t *testing.T) {
	pool := NewWorkerPool(4, 100)

	shard := pool.shardFor("crm")
	for i := 0; i < 5; i++ {
		assert.Equal(t, shard, pool.shardFor("crm"))
	}
	assert.GreaterOrEqual(t, shard, 0)
	assert.Less(t, shard, 4)

	counts := make(map[int]int)
	for i := 0; i < 400; i++ {
		counts[pool.shardFor(fmt.Sprintf("instance-%d", i))]++
	}
	for shard, count := range counts {
		assert.Greater(t, count, 50, "shard %d is starved", shard)
	}
}

func TestPool_Defaults(t *testing.T) {
	pool := NewWorkerPool(0, 0)
	stats := pool.GetStats()
	assert.Equal(t, 4, stats.NumWorkers)
	assert.Equal(t, 500, stats.QueueSize)
	assert.Empty(t, stats.WorkerStats)
}
