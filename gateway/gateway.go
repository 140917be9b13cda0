// Package gateway implements the mutation path: create, update, delete and
// their batch variants, issued directly to the remote store. Responses are
// synthesized from the caller's input instead of read back, so callers get
// an immediate answer while the local mirror catches up with the next
// remote snapshot. There is deliberately no read-your-write guarantee
// against the query engine; merging the synthesized result into the mirror
// ahead of the next snapshot would be a possible strengthening, not part
// of this contract.
package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/pkg/timestamp"
	"github.com/c360/livemirror/record"
	"github.com/c360/livemirror/store"
)

// Timestamp fields stamped onto every write.
const (
	CreateDateField = "createdate"
	LastUpdateField = "lastupdate"
)

// Gateway issues mutations to the remote store. It never consults the
// local mirror: the remote store is the authority on what exists.
type Gateway struct {
	store  store.Store
	logger *slog.Logger
	nowFn  func() string // injectable clock for tests
}

// Option configures a Gateway
type Option func(*Gateway)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// withClock overrides the write-timestamp source in tests
func withClock(nowFn func() string) Option {
	return func(g *Gateway) {
		g.nowFn = nowFn
	}
}

// New creates a Gateway over the given remote store.
func New(s store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:  s,
		logger: slog.Default(),
		nowFn:  timestamp.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Create writes data plus create/update stamps to a new document and
// returns the input data with the assigned identity. The stamps are not
// read back; the caller sees exactly what it submitted, plus the id.
// When the data carries a non-empty string id it is kept as the identity,
// otherwise one is generated.
func (g *Gateway) Create(ctx context.Context, resource string, data map[string]any) (record.Record, error) {
	id, _ := data[record.IDField].(string)
	if id == "" {
		id = uuid.NewString()
	}

	now := g.nowFn()
	fields := cloneWithoutID(data)
	fields[CreateDateField] = now
	fields[LastUpdateField] = now

	if err := g.store.Write(ctx, resource, id, fields); err != nil {
		return nil, errors.Wrap(err, "Gateway", "Create", "write document")
	}

	g.logger.Debug("created document", "resource", resource, "id", id)
	return synthesize(data, id), nil
}

// Update writes data plus an update stamp to the given document and
// returns the input data merged with the target identity. It does not
// wait for the mirror to reflect the change.
func (g *Gateway) Update(ctx context.Context, resource, id string, data map[string]any) (record.Record, error) {
	fields := cloneWithoutID(data)
	fields[LastUpdateField] = g.nowFn()

	if err := g.store.Write(ctx, resource, id, fields); err != nil {
		return nil, errors.Wrap(err, "Gateway", "Update", "write document")
	}

	g.logger.Debug("updated document", "resource", resource, "id", id)
	return synthesize(data, id), nil
}

// UpdateMany applies the same data to each id, one write per id with its
// own update stamp, and returns one synthesized record per id.
func (g *Gateway) UpdateMany(ctx context.Context, resource string, ids []string, data map[string]any) ([]record.Record, error) {
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := g.Update(ctx, resource, id, data)
		if err != nil {
			return nil, errors.Wrap(err, "Gateway", "UpdateMany", "update document "+id)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes one document and returns the caller-supplied previous
// data as the result body. The gateway does not re-read before deleting.
func (g *Gateway) Delete(ctx context.Context, resource, id string, previousData map[string]any) (record.Record, error) {
	if err := g.store.Delete(ctx, resource, id); err != nil {
		return nil, errors.Wrap(err, "Gateway", "Delete", "delete document")
	}

	g.logger.Debug("deleted document", "resource", resource, "id", id)
	return synthesize(previousData, id), nil
}

// DeleteMany removes the documents in one atomic batch write and returns
// the deleted identities.
func (g *Gateway) DeleteMany(ctx context.Context, resource string, ids []string) ([]record.Record, error) {
	if len(ids) == 0 {
		return nil, errors.WrapInvalid(errors.ErrEmptyBatch, "Gateway", "DeleteMany", "validate ids")
	}

	ops := make([]store.Op, len(ids))
	for i, id := range ids {
		ops[i] = store.Op{ID: id, Delete: true}
	}
	if err := g.store.BatchWrite(ctx, resource, ops); err != nil {
		return nil, errors.Wrap(err, "Gateway", "DeleteMany", "batch delete")
	}

	out := make([]record.Record, len(ids))
	for i, id := range ids {
		out[i] = record.Record{record.IDField: id}
	}
	g.logger.Debug("batch deleted documents", "resource", resource, "count", len(ids))
	return out, nil
}

// cloneWithoutID shallow-copies the caller's data, dropping any id field:
// identity travels as the document id, never as a stored field.
func cloneWithoutID(data map[string]any) map[string]any {
	fields := make(map[string]any, len(data)+2)
	for k, v := range data {
		if k == record.IDField {
			continue
		}
		fields[k] = v
	}
	return fields
}

// synthesize builds the response record: the input data plus the identity.
func synthesize(data map[string]any, id string) record.Record {
	rec := make(record.Record, len(data)+1)
	for k, v := range data {
		rec[k] = v
	}
	rec[record.IDField] = id
	return rec
}
