package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetReturnsCopy(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "operations", "op1", Document{"status": "open", "xp": 100}))

	doc, err := mem.Get(ctx, "operations", "op1")
	require.NoError(t, err)
	doc["status"] = "mutated"

	again, err := mem.Get(ctx, "operations", "op1")
	require.NoError(t, err)
	assert.Equal(t, "open", again["status"], "caller mutation must not leak into the store")
}

func TestMemory_GetMissing(t *testing.T) {
	mem := NewMemory()
	_, err := mem.Get(context.Background(), "operations", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UpdatePatchSemantics(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "operations", "op1",
		Document{"status": "claimed", "assigneeId": "alice", "notes": "wip"}))

	// Nil values delete, others overwrite, untouched fields survive.
	require.NoError(t, mem.Update(ctx, "operations", "op1",
		Document{"status": "open", "assigneeId": nil}))

	doc, err := mem.Get(ctx, "operations", "op1")
	require.NoError(t, err)
	assert.Equal(t, "open", doc["status"])
	assert.Equal(t, "wip", doc["notes"])
	_, present := doc["assigneeId"]
	assert.False(t, present, "nil patch value removes the field")
}

func TestMemory_UpdateMissing(t *testing.T) {
	mem := NewMemory()
	err := mem.Update(context.Background(), "operations", "nope", Document{"status": "open"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Query(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "operations", "op1", Document{"status": "open", "xp": 300}))
	require.NoError(t, mem.Put(ctx, "operations", "op2", Document{"status": "claimed", "xp": 100}))
	require.NoError(t, mem.Put(ctx, "operations", "op3", Document{"status": "open", "xp": 200}))

	t.Run("filter by equality", func(t *testing.T) {
		docs, err := mem.Query(ctx, "operations", Query{
			Filters: map[string]interface{}{"status": "open"},
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "op1", docs[0]["_id"])
		assert.Equal(t, "op3", docs[1]["_id"])
	})

	t.Run("int filter matches stored number", func(t *testing.T) {
		docs, err := mem.Query(ctx, "operations", Query{
			Filters: map[string]interface{}{"xp": 100},
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "op2", docs[0]["_id"])
	})

	t.Run("sort descending with limit", func(t *testing.T) {
		docs, err := mem.Query(ctx, "operations", Query{
			SortBy:     "xp",
			Descending: true,
			Limit:      2,
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "op1", docs[0]["_id"])
		assert.Equal(t, "op3", docs[1]["_id"])
	})

	t.Run("no matches yields empty set", func(t *testing.T) {
		docs, err := mem.Query(ctx, "operations", Query{
			Filters: map[string]interface{}{"status": "verified"},
		})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestMemory_SubscribeDeliversInitialAndChanges(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "operations", "op1", Document{"status": "open"}))

	var snapshots [][]Document
	unsubscribe, err := mem.Subscribe(ctx, "operations",
		Query{Filters: map[string]interface{}{"status": "open"}},
		func(docs []Document) { snapshots = append(snapshots, docs) }, nil)
	require.NoError(t, err)

	// Initial delivery.
	require.Len(t, snapshots, 1)
	assert.Len(t, snapshots[0], 1)

	// A matching write triggers a fresh result set.
	require.NoError(t, mem.Put(ctx, "operations", "op2", Document{"status": "open"}))
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 2)

	// A write that removes a match still notifies with the shrunken set.
	require.NoError(t, mem.Update(ctx, "operations", "op1", Document{"status": "claimed"}))
	require.Len(t, snapshots, 3)
	assert.Len(t, snapshots[2], 1)

	// After unsubscribe, silence.
	unsubscribe()
	require.NoError(t, mem.Put(ctx, "operations", "op3", Document{"status": "open"}))
	assert.Len(t, snapshots, 3)
}

func TestMemory_SubscriberCanWriteFromCallback(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	// A callback that writes back into the store must not deadlock; the
	// store delivers outside its critical section.
	calls := 0
	_, err := mem.Subscribe(ctx, "operations", Query{}, func(docs []Document) {
		calls++
		if calls == 2 {
			_ = mem.Put(ctx, "audit", "entry", Document{"seen": len(docs)})
		}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, mem.Put(ctx, "operations", "op1", Document{"status": "open"}))

	doc, err := mem.Get(ctx, "audit", "entry")
	require.NoError(t, err)
	assert.Equal(t, 1, doc["seen"])
}
