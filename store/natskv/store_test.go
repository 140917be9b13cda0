package natskv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCollection(t *testing.T) {
	t.Run("empty value decodes to empty snapshot", func(t *testing.T) {
		snap, err := decodeCollection(nil)
		require.NoError(t, err)
		assert.Empty(t, snap)
	})

	t.Run("documents keep array order", func(t *testing.T) {
		value := []byte(`[{"id":"b","fields":{"n":1}},{"id":"a","fields":{"n":2}}]`)
		snap, err := decodeCollection(value)
		require.NoError(t, err)
		require.Len(t, snap, 2)
		assert.Equal(t, "b", snap[0].ID)
		assert.Equal(t, "a", snap[1].ID)
	})

	t.Run("missing fields become empty map", func(t *testing.T) {
		snap, err := decodeCollection([]byte(`[{"id":"x"}]`))
		require.NoError(t, err)
		require.Len(t, snap, 1)
		assert.NotNil(t, snap[0].Fields)
	})

	t.Run("malformed value errors", func(t *testing.T) {
		_, err := decodeCollection([]byte(`{"not":"an array"}`))
		assert.Error(t, err)
	})
}

func TestUpsertAndRemove(t *testing.T) {
	docs := []kvDocument{}
	docs = upsert(docs, "a", map[string]any{"v": 1})
	docs = upsert(docs, "b", map[string]any{"v": 2})
	docs = upsert(docs, "a", map[string]any{"v": 3})

	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID, "update must not move the document")
	assert.Equal(t, 3, docs[0].Fields["v"])

	docs = remove(docs, "a")
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	// Removing an absent id is a no-op
	docs = remove(docs, "missing")
	assert.Len(t, docs, 1)
}

func TestUpsertCopiesFields(t *testing.T) {
	fields := map[string]any{"v": 1}
	docs := upsert(nil, "a", fields)
	fields["v"] = 99
	assert.Equal(t, 1, docs[0].Fields["v"])
}
