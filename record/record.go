// Package record defines the canonical parsed representation of a remote
// document and the parser that produces it.
package record

import (
	"github.com/c360/livemirror/pkg/timestamp"
	"github.com/c360/livemirror/store"
)

// IDField is the guaranteed identity field on every record. Its value is
// the remote document's identity, injected during parsing and overriding
// any pre-existing field of the same name in the raw data.
const IDField = "id"

// Record is the canonical parsed form of one remote document: a
// string-keyed mapping that always carries a non-empty IDField. All other
// fields are opaque values copied from the source document, with
// timestamp-capable values rewritten to RFC3339 strings.
type Record map[string]any

// ID returns the record's identity. Parsed records always have one.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Parse converts one raw remote document into a Record: shallow-copy all
// fields, normalize timestamp-capable values, inject the identity. Pure
// and total; malformed fields pass through untouched.
func Parse(doc store.Document) Record {
	rec := make(Record, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		if s, ok := timestamp.Normalize(v); ok {
			rec[k] = s
			continue
		}
		rec[k] = v
	}
	rec[IDField] = doc.ID
	return rec
}

// ParseSnapshot converts a full store snapshot into records, preserving
// store order.
func ParseSnapshot(snap store.Snapshot) []Record {
	records := make([]Record, len(snap))
	for i, doc := range snap {
		records[i] = Parse(doc)
	}
	return records
}
