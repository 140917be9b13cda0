//go:build integration

package natskv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/livemirror/natsclient"
	"github.com/c360/livemirror/store"
)

func waitForSnapshot(t *testing.T, ch <-chan store.Snapshot, match func(store.Snapshot) bool) store.Snapshot {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "subscription channel closed")
			if match(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestStore_SubscribeAndWrite(t *testing.T) {
	testClient := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	s, err := New(ctx, testClient.Client, "test-collections")
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := s.Subscribe(subCtx, "posts")
	require.NoError(t, err)

	// Initial snapshot arrives even though the collection doesn't exist yet
	snap := waitForSnapshot(t, ch, func(_ store.Snapshot) bool { return true })
	assert.Empty(t, snap)

	require.NoError(t, s.Write(ctx, "posts", "p1", map[string]any{"title": "first"}))

	snap = waitForSnapshot(t, ch, func(s store.Snapshot) bool { return len(s) == 1 })
	assert.Equal(t, "p1", snap[0].ID)
	assert.Equal(t, "first", snap[0].Fields["title"])

	// Rewriting the same id replaces fields in place
	require.NoError(t, s.Write(ctx, "posts", "p1", map[string]any{"title": "updated"}))
	snap = waitForSnapshot(t, ch, func(s store.Snapshot) bool {
		return len(s) == 1 && s[0].Fields["title"] == "updated"
	})
	assert.Equal(t, "p1", snap[0].ID)

	require.NoError(t, s.Delete(ctx, "posts", "p1"))
	waitForSnapshot(t, ch, func(s store.Snapshot) bool { return len(s) == 0 })
}

func TestStore_InsertionOrderPreserved(t *testing.T) {
	testClient := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	s, err := New(ctx, testClient.Client, "test-order")
	require.NoError(t, err)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Write(ctx, "items", id, map[string]any{"v": id}))
	}
	// Updating an existing document must not move it
	require.NoError(t, s.Write(ctx, "items", "a", map[string]any{"v": "a2"}))

	ch, err := s.Subscribe(ctx, "items")
	require.NoError(t, err)

	snap := waitForSnapshot(t, ch, func(s store.Snapshot) bool { return len(s) == 3 })
	assert.Equal(t, "c", snap[0].ID)
	assert.Equal(t, "a", snap[1].ID)
	assert.Equal(t, "b", snap[2].ID)
	assert.Equal(t, "a2", snap[1].Fields["v"])
}

func TestStore_BatchWriteIsAtomic(t *testing.T) {
	testClient := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	s, err := New(ctx, testClient.Client, "test-batch")
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "docs", "keep", map[string]any{"v": 1}))
	require.NoError(t, s.Write(ctx, "docs", "drop1", map[string]any{"v": 2}))
	require.NoError(t, s.Write(ctx, "docs", "drop2", map[string]any{"v": 3}))

	ch, err := s.Subscribe(ctx, "docs")
	require.NoError(t, err)
	waitForSnapshot(t, ch, func(s store.Snapshot) bool { return len(s) == 3 })

	ops := []store.Op{
		{ID: "drop1", Delete: true},
		{ID: "drop2", Delete: true},
		{ID: "added", Fields: map[string]any{"v": 4}},
	}
	require.NoError(t, s.BatchWrite(ctx, "docs", ops))

	// The next membership change carries the whole batch; no snapshot
	// with only part of it applied can appear.
	snap := waitForSnapshot(t, ch, func(s store.Snapshot) bool { return len(s) != 3 })
	require.Len(t, snap, 2)
	assert.Equal(t, "keep", snap[0].ID)
	assert.Equal(t, "added", snap[1].ID)
}

func TestStore_BatchWriteRejectsEmpty(t *testing.T) {
	testClient := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	s, err := New(ctx, testClient.Client, "test-empty")
	require.NoError(t, err)

	err = s.BatchWrite(ctx, "docs", nil)
	assert.Error(t, err)
}

func TestStore_SubscribeClosesOnCancel(t *testing.T) {
	testClient := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	s, err := New(ctx, testClient.Client, "test-cancel")
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := s.Subscribe(subCtx, "docs")
	require.NoError(t, err)

	waitForSnapshot(t, ch, func(_ store.Snapshot) bool { return true })
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}
