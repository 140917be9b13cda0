package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/livemirror/store"
)

type fakeTimestamp struct {
	t time.Time
}

func (f fakeTimestamp) AsTime() time.Time { return f.t }

func TestParseInjectsID(t *testing.T) {
	rec := Parse(store.Document{
		ID:     "doc-1",
		Fields: map[string]any{"title": "Dune"},
	})

	assert.Equal(t, "doc-1", rec.ID())
	assert.Equal(t, "Dune", rec["title"])
}

func TestParseOverridesRawIDField(t *testing.T) {
	rec := Parse(store.Document{
		ID:     "doc-1",
		Fields: map[string]any{"id": "stale", "title": "Dune"},
	})

	// Document identity wins over whatever the raw data carried
	assert.Equal(t, "doc-1", rec.ID())
}

func TestParseNormalizesTimestamps(t *testing.T) {
	ref := time.Date(2023, 1, 15, 12, 30, 45, 0, time.UTC)

	rec := Parse(store.Document{
		ID: "doc-1",
		Fields: map[string]any{
			"createdate": fakeTimestamp{t: ref},
			"lastupdate": ref,
			"count":      int64(1673785845), // plain number, stays opaque
			"note":       "written at 2023-01-15",
		},
	})

	assert.Equal(t, "2023-01-15T12:30:45Z", rec["createdate"])
	assert.Equal(t, "2023-01-15T12:30:45Z", rec["lastupdate"])
	assert.Equal(t, int64(1673785845), rec["count"])
	assert.Equal(t, "written at 2023-01-15", rec["note"])
}

func TestParsePassesMalformedFieldsThrough(t *testing.T) {
	nested := map[string]any{"deep": []any{1, "two", nil}}

	rec := Parse(store.Document{
		ID: "doc-1",
		Fields: map[string]any{
			"nested":  nested,
			"nothing": nil,
			"flag":    true,
		},
	})

	assert.Equal(t, nested, rec["nested"])
	assert.Nil(t, rec["nothing"])
	assert.Equal(t, true, rec["flag"])
}

func TestParseEmptyDocument(t *testing.T) {
	rec := Parse(store.Document{ID: "doc-1"})
	require.Len(t, rec, 1)
	assert.Equal(t, "doc-1", rec.ID())
}

func TestParseSnapshotPreservesOrder(t *testing.T) {
	snap := store.Snapshot{
		{ID: "b", Fields: map[string]any{"n": 2}},
		{ID: "a", Fields: map[string]any{"n": 1}},
		{ID: "c", Fields: map[string]any{"n": 3}},
	}

	records := ParseSnapshot(snap)
	require.Len(t, records, 3)
	assert.Equal(t, "b", records[0].ID())
	assert.Equal(t, "a", records[1].ID())
	assert.Equal(t, "c", records[2].ID())
}

func TestRecordIDMissing(t *testing.T) {
	assert.Equal(t, "", Record{}.ID())
	assert.Equal(t, "", Record{"id": 42}.ID())
}
