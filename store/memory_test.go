package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription channel closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestMemorySubscribeDeliversInitialSnapshot(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))

	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)

	snap := receiveSnapshot(t, ch)
	require.Len(t, snap, 1)
	assert.Equal(t, "1", snap[0].ID)
	assert.Equal(t, "Dune", snap[0].Fields["title"])
}

func TestMemoryWritePublishesFullMembership(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	assert.Empty(t, receiveSnapshot(t, ch))

	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))
	snap := receiveSnapshot(t, ch)
	require.Len(t, snap, 1)

	require.NoError(t, m.Write(ctx, "books", "2", map[string]any{"title": "Foundation"}))
	snap = receiveSnapshot(t, ch)
	require.Len(t, snap, 2)
	// Insertion order preserved
	assert.Equal(t, "1", snap[0].ID)
	assert.Equal(t, "2", snap[1].ID)
}

func TestMemoryWriteReplacesExistingDocument(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))
	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune Messiah"}))

	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	snap := receiveSnapshot(t, ch)
	require.Len(t, snap, 1)
	assert.Equal(t, "Dune Messiah", snap[0].Fields["title"])
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))
	require.NoError(t, m.Delete(ctx, "books", "1"))

	// Deleting an absent document is not an error
	require.NoError(t, m.Delete(ctx, "books", "missing"))

	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	assert.Empty(t, receiveSnapshot(t, ch))
}

func TestMemoryBatchWriteIsAtomic(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))
	require.NoError(t, m.Write(ctx, "books", "2", map[string]any{"title": "Foundation"}))

	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	require.Len(t, receiveSnapshot(t, ch), 2)

	err = m.BatchWrite(ctx, "books", []Op{
		{ID: "1", Delete: true},
		{ID: "2", Delete: true},
		{ID: "3", Fields: map[string]any{"title": "Hyperion"}},
	})
	require.NoError(t, err)

	// One snapshot carrying every op's effect
	snap := receiveSnapshot(t, ch)
	require.Len(t, snap, 1)
	assert.Equal(t, "3", snap[0].ID)
}

func TestMemoryBatchWriteRejectsEmptyBatch(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	err := m.BatchWrite(context.Background(), "books", nil)
	assert.Error(t, err)
}

func TestMemoryWriteRejectsEmptyID(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	err := m.Write(context.Background(), "books", "", map[string]any{})
	assert.Error(t, err)
}

func TestMemorySubscribeAfterCloseFails(t *testing.T) {
	m := NewMemory()
	m.Close()

	_, err := m.Subscribe(context.Background(), "books")
	assert.Error(t, err)
}

func TestMemoryUnsubscribeOnContextCancel(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	receiveSnapshot(t, ch)

	cancel()

	// Channel closes once the cancellation is observed
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestMemorySnapshotIsolation(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))

	ch, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	snap := receiveSnapshot(t, ch)

	// Mutating a received snapshot must not leak into the store
	snap[0].Fields["title"] = "mutated"

	ch2, err := m.Subscribe(ctx, "books")
	require.NoError(t, err)
	snap2 := receiveSnapshot(t, ch2)
	assert.Equal(t, "Dune", snap2[0].Fields["title"])
}
