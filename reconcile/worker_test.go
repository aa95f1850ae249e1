package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_ReplaysJobSuccessfully(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	var settled atomic.Int32
	worker := NewWorker(queue, func(ctx context.Context, job Job) error {
		settled.Add(1)
		return nil
	}, WorkerConfig{DequeueTimeout: 50 * time.Millisecond}, nil)

	require.NoError(t, queue.EnqueueReward(ctx, "op1", "alice", 300, 0))

	worker.Start()
	defer worker.Stop()

	assert.Eventually(t, func() bool {
		return settled.Load() == 1
	}, 3*time.Second, 20*time.Millisecond)

	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	var attempts atomic.Int32
	worker := NewWorker(queue, func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return errors.New("profile still unreachable")
	}, WorkerConfig{
		MaxAttempts:    2,
		DequeueTimeout: 50 * time.Millisecond,
	}, nil)

	require.NoError(t, queue.EnqueueReward(ctx, "op1", "ghost", 100, 0))

	worker.Start()
	defer worker.Stop()

	assert.Eventually(t, func() bool {
		dead, err := queue.DeadDepth(ctx)
		return err == nil && dead == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Attempt 1 and attempt 2 both ran before the job was parked.
	assert.Equal(t, int32(2), attempts.Load())

	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestWorker_RecoversAfterTransientFailure(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	var attempts atomic.Int32
	worker := NewWorker(queue, func(ctx context.Context, job Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, WorkerConfig{
		MaxAttempts:    5,
		DequeueTimeout: 50 * time.Millisecond,
	}, nil)

	require.NoError(t, queue.EnqueueReward(ctx, "op1", "alice", 100, 0))

	worker.Start()
	defer worker.Stop()

	assert.Eventually(t, func() bool {
		return attempts.Load() == 2
	}, 3*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		depth, err := queue.Depth(ctx)
		return err == nil && depth == 0
	}, 3*time.Second, 20*time.Millisecond)

	dead, err := queue.DeadDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dead)
}

func TestWorker_StopWaitsForLoop(t *testing.T) {
	queue := newTestQueue(t)

	worker := NewWorker(queue, func(ctx context.Context, job Job) error {
		return nil
	}, WorkerConfig{DequeueTimeout: 50 * time.Millisecond}, nil)

	worker.Start()

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
}
