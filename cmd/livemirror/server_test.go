package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/provider"
	"github.com/c360/livemirror/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := provider.New(mem, provider.WithLogger(logger))
	t.Cleanup(p.Close)

	srv := newServer(":0", p, metric.New(), logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return ts
}

func postVerb(t *testing.T, ts *httptest.Server, resource, verb, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(ts.URL+"/api/"+resource+"/"+verb, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestServerDispatch(t *testing.T) {
	ts := newTestServer(t)

	// Create then read back through the list verb
	resp, body := postVerb(t, ts, "posts", "create",
		`{"data":{"id":"p1","title":"hello"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "p1", data["id"])
	assert.Equal(t, "hello", data["title"])

	resp, body = postVerb(t, ts, "posts", "getList",
		`{"pagination":{"page":1,"perPage":10},"sort":{"field":"id","order":"ASC"},"filter":{}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	records := body["data"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].(map[string]any)["id"])
}

func TestServerDispatchErrors(t *testing.T) {
	ts := newTestServer(t)

	t.Run("unknown verb", func(t *testing.T) {
		resp, body := postVerb(t, ts, "posts", "explode", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "unknown verb")
	})

	t.Run("missing record", func(t *testing.T) {
		resp, body := postVerb(t, ts, "posts", "getOne", `{"id":"ghost"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body["error"], "no id found matching ghost")
	})

	t.Run("malformed params", func(t *testing.T) {
		resp, _ := postVerb(t, ts, "posts", "getOne", `{"id":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServerHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
