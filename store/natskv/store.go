// Package natskv implements the store capability on a NATS JetStream
// key-value bucket.
//
// Each collection lives under a single KV key whose value is the JSON
// array of the collection's documents in insertion order. That layout
// buys the two properties the mirror layer depends on for free: every
// KV update carries the collection's full membership, and a batch of
// mutations lands as one compare-and-swap so watchers never observe a
// partially applied batch.
package natskv

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/natsclient"
	"github.com/c360/livemirror/store"
)

// subscriberBuffer bounds each subscriber channel. Full-snapshot semantics
// make coalescing lossless, so a small buffer is enough.
const subscriberBuffer = 16

// kvDocument is the wire form of one document inside a collection value.
type kvDocument struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Store implements store.Store on one KV bucket. Collection name maps to
// KV key; collection membership maps to the key's value.
type Store struct {
	kv     *natsclient.KVStore
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for subscription diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over the named bucket, creating the bucket when it
// does not exist yet.
func New(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Store", "New", "empty bucket name")
	}

	kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "livemirror document collections",
	})
	if err != nil {
		return nil, errors.Wrap(err, "Store", "New", "open bucket "+bucket)
	}

	s := &Store{
		kv:     client.NewKVStore(kvBucket),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subscribe watches the collection's KV key and yields its full membership:
// once immediately with the current state, then once per change. The channel
// closes when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context, collection string) (<-chan store.Snapshot, error) {
	if collection == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Store", "Subscribe", "empty collection name")
	}

	watcher, err := s.kv.Watch(ctx, collection)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "Subscribe", "watch "+collection)
	}

	ch := make(chan store.Snapshot, subscriberBuffer)
	go s.pump(ctx, collection, watcher, ch)
	return ch, nil
}

// pump converts KV watch updates into membership snapshots. The watcher
// replays the current value (if any) followed by a nil marker, then
// delivers live updates; pump folds the replay into the initial snapshot
// so subscribers always hear the current state first.
func (s *Store) pump(ctx context.Context, collection string, watcher jetstream.KeyWatcher, ch chan store.Snapshot) {
	defer close(ch)
	defer func() { _ = watcher.Stop() }()

	current := store.Snapshot{}
	initialSent := false

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// End of replay: the key's current state is known now,
				// even when the key doesn't exist yet.
				if !initialSent {
					initialSent = true
					s.publish(ch, current)
				}
				continue
			}

			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				current = store.Snapshot{}
			default:
				snap, err := decodeCollection(entry.Value())
				if err != nil {
					s.logger.Error("skipping undecodable collection value",
						"collection", collection, "revision", entry.Revision(), "error", err)
					continue
				}
				current = snap
			}

			if initialSent {
				s.publish(ch, current)
			}
		}
	}
}

// publish delivers a snapshot without blocking the pump. When the
// subscriber's buffer is full the oldest pending snapshot is dropped;
// intermediate snapshots carry no information the latest one doesn't.
func (s *Store) publish(ch chan store.Snapshot, snap store.Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Write creates or replaces one document via CAS on the collection key.
func (s *Store) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Store", "Write", "empty document id")
	}

	err := s.kv.UpdateWithRetry(ctx, collection, func(current []byte) ([]byte, error) {
		docs, err := decodeDocs(current)
		if err != nil {
			return nil, err
		}
		docs = upsert(docs, id, fields)
		return json.Marshal(docs)
	})
	if err != nil {
		return errors.WrapTransient(err, "Store", "Write", "update collection "+collection)
	}
	return nil
}

// Delete removes one document. Deleting an absent document is a no-op,
// matching remote-store semantics.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	err := s.kv.UpdateWithRetry(ctx, collection, func(current []byte) ([]byte, error) {
		docs, err := decodeDocs(current)
		if err != nil {
			return nil, err
		}
		docs = remove(docs, id)
		return json.Marshal(docs)
	})
	if err != nil {
		return errors.WrapTransient(err, "Store", "Delete", "update collection "+collection)
	}
	return nil
}

// BatchWrite applies all ops in one CAS update. Watchers observe a single
// new value containing every op's effect.
func (s *Store) BatchWrite(ctx context.Context, collection string, ops []store.Op) error {
	if len(ops) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyBatch, "Store", "BatchWrite", "validate batch")
	}

	err := s.kv.UpdateWithRetry(ctx, collection, func(current []byte) ([]byte, error) {
		docs, err := decodeDocs(current)
		if err != nil {
			return nil, err
		}
		for _, op := range ops {
			if op.Delete {
				docs = remove(docs, op.ID)
				continue
			}
			docs = upsert(docs, op.ID, op.Fields)
		}
		return json.Marshal(docs)
	})
	if err != nil {
		return errors.WrapTransient(err, "Store", "BatchWrite", "update collection "+collection)
	}
	return nil
}

// decodeDocs parses a collection value for a read-modify-write. A missing
// key decodes to an empty collection.
func decodeDocs(value []byte) ([]kvDocument, error) {
	if len(value) == 0 {
		return []kvDocument{}, nil
	}
	var docs []kvDocument
	if err := json.Unmarshal(value, &docs); err != nil {
		return nil, errors.WrapInvalid(err, "Store", "decodeDocs", "parse collection value")
	}
	return docs, nil
}

// decodeCollection parses a collection value into a snapshot.
func decodeCollection(value []byte) (store.Snapshot, error) {
	docs, err := decodeDocs(value)
	if err != nil {
		return nil, err
	}
	snap := make(store.Snapshot, len(docs))
	for i, doc := range docs {
		fields := doc.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		snap[i] = store.Document{ID: doc.ID, Fields: fields}
	}
	return snap, nil
}

func upsert(docs []kvDocument, id string, fields map[string]any) []kvDocument {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	for i, doc := range docs {
		if doc.ID == id {
			docs[i].Fields = copied
			return docs
		}
	}
	return append(docs, kvDocument{ID: id, Fields: copied})
}

func remove(docs []kvDocument, id string) []kvDocument {
	for i, doc := range docs {
		if doc.ID == id {
			return append(docs[:i], docs[i+1:]...)
		}
	}
	return docs
}
