package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/query"
	"github.com/c360/livemirror/store"
)

func newTestProvider(t *testing.T) (*Provider, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	p := New(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() {
		p.Close()
		mem.Close()
	})
	return p, mem
}

func seedBooks(t *testing.T, mem *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, "books", "1", map[string]any{"title": "Dune"}))
	require.NoError(t, mem.Write(ctx, "books", "2", map[string]any{"title": "Foundation"}))
}

func TestGetListSortedPage(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)

	resp, err := p.GetList(context.Background(), "books", GetListParams{
		Sort:       query.Sort{Field: "title", Order: query.OrderAsc},
		Pagination: query.Pagination{Page: 1, PerPage: 10},
		Filter:     query.Filter{},
	})
	require.NoError(t, err)

	require.Len(t, resp.Data, 2)
	assert.Equal(t, "1", resp.Data[0].ID())
	assert.Equal(t, "Dune", resp.Data[0]["title"])
	assert.Equal(t, "2", resp.Data[1].ID())
	assert.Equal(t, 2, resp.Total)
}

func TestGetOneNotFound(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)

	_, err := p.GetOne(context.Background(), "books", GetOneParams{ID: "9"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetMany(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)

	resp, err := p.GetMany(context.Background(), "books", GetManyParams{IDs: []string{"2", "9"}})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Foundation", resp.Data[0]["title"])
}

func TestGetManyReference(t *testing.T) {
	p, mem := newTestProvider(t)
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, "comments", "c1", map[string]any{"post_id": "p1"}))
	require.NoError(t, mem.Write(ctx, "comments", "c2", map[string]any{"post_id": "p2"}))
	require.NoError(t, mem.Write(ctx, "comments", "c3", map[string]any{"post_id": "p1"}))

	resp, err := p.GetManyReference(ctx, "comments", GetManyReferenceParams{
		Target:     "post_id",
		ID:         "p1",
		Pagination: query.Pagination{Page: 1, PerPage: 10},
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 2, resp.Total)
}

func TestCreateListRoundTrip(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	submitted := []map[string]any{
		{"title": "Dune", "year": float64(1965)},
		{"title": "Foundation", "year": float64(1951)},
		{"title": "Hyperion", "year": float64(1989)},
	}
	for _, data := range submitted {
		resp, err := p.Create(ctx, "books", CreateParams{Data: data})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Data.ID())
	}

	// The mirror catches up with the next remote notification
	assert.Eventually(t, func() bool {
		resp, err := p.GetList(ctx, "books", GetListParams{
			Pagination: query.Pagination{Page: 1, PerPage: 10},
		})
		return err == nil && len(resp.Data) == 3
	}, time.Second, 5*time.Millisecond)

	resp, err := p.GetList(ctx, "books", GetListParams{
		Pagination: query.Pagination{Page: 1, PerPage: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total)
	for i, rec := range resp.Data {
		assert.Equal(t, submitted[i]["title"], rec["title"])
		assert.Equal(t, submitted[i]["year"], rec["year"])
	}
}

func TestDeleteManyImmediateResponse(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)
	ctx := context.Background()

	// Response is synthesized before the mirror reflects the change
	resp, err := p.DeleteMany(ctx, "books", DeleteManyParams{IDs: []string{"1", "2"}})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "1", resp.Data[0].ID())
	assert.Equal(t, "2", resp.Data[1].ID())

	assert.Eventually(t, func() bool {
		list, err := p.GetList(ctx, "books", GetListParams{})
		return err == nil && len(list.Data) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateFlowsThroughMirror(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)
	ctx := context.Background()

	resp, err := p.Update(ctx, "books", UpdateParams{
		ID:   "1",
		Data: map[string]any{"title": "Dune Messiah"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", resp.Data["title"])

	assert.Eventually(t, func() bool {
		one, err := p.GetOne(ctx, "books", GetOneParams{ID: "1"})
		return err == nil && one.Data["title"] == "Dune Messiah"
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateMany(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)

	resp, err := p.UpdateMany(context.Background(), "books", UpdateManyParams{
		IDs:  []string{"1", "2"},
		Data: map[string]any{"read": true},
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
}

func TestDeleteEchoesPreviousData(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)

	resp, err := p.Delete(context.Background(), "books", DeleteParams{
		ID:           "1",
		PreviousData: map[string]any{"title": "Dune"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Data.ID())
	assert.Equal(t, "Dune", resp.Data["title"])
}

func TestDispatchRoutesVerbs(t *testing.T) {
	p, mem := newTestProvider(t)
	seedBooks(t, mem)
	ctx := context.Background()

	tests := []struct {
		verb   string
		params string
		check  func(t *testing.T, result any)
	}{
		{
			verb:   VerbGetList,
			params: `{"pagination":{"page":1,"perPage":10},"sort":{"field":"title","order":"ASC"},"filter":{}}`,
			check: func(t *testing.T, result any) {
				resp, ok := result.(*ListResponse)
				require.True(t, ok)
				assert.Len(t, resp.Data, 2)
				assert.Equal(t, 2, resp.Total)
			},
		},
		{
			verb:   VerbGetOne,
			params: `{"id":"1"}`,
			check: func(t *testing.T, result any) {
				resp, ok := result.(*RecordResponse)
				require.True(t, ok)
				assert.Equal(t, "Dune", resp.Data["title"])
			},
		},
		{
			verb:   VerbGetMany,
			params: `{"ids":["1","2"]}`,
			check: func(t *testing.T, result any) {
				resp, ok := result.(*RecordsResponse)
				require.True(t, ok)
				assert.Len(t, resp.Data, 2)
			},
		},
		{
			verb:   VerbCreate,
			params: `{"data":{"title":"Hyperion"}}`,
			check: func(t *testing.T, result any) {
				resp, ok := result.(*RecordResponse)
				require.True(t, ok)
				assert.NotEmpty(t, resp.Data.ID())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.verb, func(t *testing.T) {
			result, err := p.Dispatch(ctx, tt.verb, "books", json.RawMessage(tt.params))
			require.NoError(t, err)
			tt.check(t, result)
		})
	}
}

func TestDispatchUnknownVerb(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.Dispatch(context.Background(), "explode", "books", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidVerb)
}

func TestDispatchBadParams(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.Dispatch(context.Background(), VerbGetOne, "books", json.RawMessage(`{"id":`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsCounted(t *testing.T) {
	mem := store.NewMemory()
	defer mem.Close()
	m := metric.New()
	p := New(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithMetrics(m))
	defer p.Close()

	_, err := p.GetList(context.Background(), "books", GetListParams{})
	require.NoError(t, err)
}
