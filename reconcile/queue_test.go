package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	queue, err := NewQueue(context.Background(), Config{
		RedisURL: "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })
	return queue
}

func TestNewQueue_InvalidURL(t *testing.T) {
	_, err := NewQueue(context.Background(), Config{RedisURL: "://not-a-url"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestQueue_EnqueueDequeueRoundTrip(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	enqueued := Job{
		OperationID: "op1",
		OperatorID:  "alice",
		XP:          300,
		Tokens:      2.5,
		Attempt:     2,
		EnqueuedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, queue.Enqueue(ctx, enqueued))

	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	job, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enqueued.OperationID, job.OperationID)
	assert.Equal(t, enqueued.OperatorID, job.OperatorID)
	assert.Equal(t, enqueued.XP, job.XP)
	assert.Equal(t, enqueued.Tokens, job.Tokens)
	assert.Equal(t, enqueued.Attempt, job.Attempt)
	assert.True(t, job.EnqueuedAt.Equal(enqueued.EnqueuedAt))

	depth, err = queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestQueue_DequeuePreservesOrder(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"op1", "op2", "op3"} {
		require.NoError(t, queue.Enqueue(ctx, Job{OperationID: id, OperatorID: "alice", XP: 10}))
	}

	for _, want := range []string{"op1", "op2", "op3"} {
		job, err := queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.OperationID)
	}
}

func TestQueue_DequeueTimeoutReturnsNil(t *testing.T) {
	queue := newTestQueue(t)

	job, err := queue.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_EnqueueRewardStampsFirstAttempt(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.EnqueueReward(ctx, "op1", "alice", 150, 0))

	job, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, 150, job.XP)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestQueue_ParkMovesToDeadLetterList(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Park(ctx, Job{OperationID: "op1", OperatorID: "alice", XP: 100, Attempt: 6}))

	dead, err := queue.DeadDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dead)

	// The pending list is untouched.
	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
