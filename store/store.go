// Package store defines the remote document-store capability consumed by
// the mirror layer, along with an embeddable in-memory implementation.
//
// The contract is deliberately coarse: a subscription delivers the entire
// current membership of a collection on every change, never a delta. The
// mirror layer relies on that to replace its local copy wholesale.
package store

import "context"

// Document is one remote document: its identity plus raw fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Snapshot is one complete notification of a collection's current
// membership, in store order.
type Snapshot []Document

// Op is a single entry in a batch write. Delete removes the document;
// otherwise Fields replace the document's fields.
type Op struct {
	ID     string
	Fields map[string]any
	Delete bool
}

// Store is the remote document-store capability.
//
// Subscribe returns a channel that yields the collection's full membership:
// once immediately with the current state, then once per change. The channel
// is closed when ctx is cancelled or the store shuts down. Implementations
// may coalesce intermediate snapshots under backpressure; only the latest
// membership matters.
//
// Writes are acknowledged when the store has accepted them; subscribers
// observe them through a subsequent snapshot. BatchWrite applies all ops
// atomically: subscribers never observe a partially applied batch.
type Store interface {
	Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error)
	Write(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	BatchWrite(ctx context.Context, collection string, ops []Op) error
}

// Clone returns a deep-enough copy of the snapshot for handing across
// goroutine boundaries: the slice and each field map are copied, field
// values are shared.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, doc := range s {
		fields := make(map[string]any, len(doc.Fields))
		for k, v := range doc.Fields {
			fields[k] = v
		}
		out[i] = Document{ID: doc.ID, Fields: fields}
	}
	return out
}
