package store

import (
	"context"
	"sync"

	"github.com/c360/livemirror/errors"
)

// subscriberBuffer bounds each subscriber channel. Full-snapshot semantics
// make coalescing lossless, so a small buffer is enough.
const subscriberBuffer = 16

// Memory is an in-process Store implementation. Every mutation publishes
// the collection's full membership to all subscribers, which makes it a
// faithful stand-in for the remote store in tests and a usable embedded
// backend for single-process deployments.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	closed      bool
}

type memCollection struct {
	docs []Document // insertion order
	subs []chan Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]*memCollection),
	}
}

// Subscribe registers a subscriber for the collection. The current
// membership is delivered immediately, then once per change.
func (m *Memory) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "Memory", "Subscribe", "store closed")
	}

	col := m.collection(collection)
	ch := make(chan Snapshot, subscriberBuffer)
	col.subs = append(col.subs, ch)

	// Initial snapshot so the first consumer never starts empty-handed.
	ch <- m.snapshotLocked(col)

	go func() {
		<-ctx.Done()
		m.unsubscribe(collection, ch)
	}()

	return ch, nil
}

// Write creates or replaces one document and notifies subscribers.
func (m *Memory) Write(_ context.Context, collection, id string, fields map[string]any) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Memory", "Write", "empty document id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	m.upsertLocked(col, id, fields)
	m.publishLocked(col)
	return nil
}

// Delete removes one document and notifies subscribers. Deleting an absent
// document is a no-op, matching remote-store semantics.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	m.removeLocked(col, id)
	m.publishLocked(col)
	return nil
}

// BatchWrite applies all ops in one step. Subscribers observe a single
// snapshot containing every op's effect.
func (m *Memory) BatchWrite(_ context.Context, collection string, ops []Op) error {
	if len(ops) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyBatch, "Memory", "BatchWrite", "validate batch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	for _, op := range ops {
		if op.Delete {
			m.removeLocked(col, op.ID)
			continue
		}
		m.upsertLocked(col, op.ID, op.Fields)
	}
	m.publishLocked(col)
	return nil
}

// Close shuts the store down and closes all subscriber channels.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for _, col := range m.collections {
		for _, ch := range col.subs {
			close(ch)
		}
		col.subs = nil
	}
}

// collection returns the named collection, creating it when absent.
// Caller holds m.mu.
func (m *Memory) collection(name string) *memCollection {
	col, ok := m.collections[name]
	if !ok {
		col = &memCollection{}
		m.collections[name] = col
	}
	return col
}

func (m *Memory) upsertLocked(col *memCollection, id string, fields map[string]any) {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	for i, doc := range col.docs {
		if doc.ID == id {
			col.docs[i].Fields = copied
			return
		}
	}
	col.docs = append(col.docs, Document{ID: id, Fields: copied})
}

func (m *Memory) removeLocked(col *memCollection, id string) {
	for i, doc := range col.docs {
		if doc.ID == id {
			col.docs = append(col.docs[:i], col.docs[i+1:]...)
			return
		}
	}
}

func (m *Memory) snapshotLocked(col *memCollection) Snapshot {
	return Snapshot(col.docs).Clone()
}

// publishLocked fans the current membership out to every subscriber.
// When a subscriber's buffer is full the oldest pending snapshot is
// dropped; intermediate snapshots carry no information the latest one
// doesn't.
func (m *Memory) publishLocked(col *memCollection) {
	snap := m.snapshotLocked(col)
	for _, ch := range col.subs {
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
}

func (m *Memory) unsubscribe(collection string, ch chan Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	col, ok := m.collections[collection]
	if !ok {
		return
	}
	for i, sub := range col.subs {
		if sub == ch {
			col.subs = append(col.subs[:i], col.subs[i+1:]...)
			close(ch)
			return
		}
	}
}
