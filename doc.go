// Package livemirror presents remote streaming document collections as
// locally queryable, paginated lists.
//
// # Architecture
//
// Reads and writes take different paths:
//
//	┌─────────────────────────────────────┐
//	│           Provider                  │  One method per verb,
//	│   (getList ... deleteMany)          │  dispatch by name
//	└─────────────────────────────────────┘
//	      ↓ reads              ↓ writes
//	┌───────────────┐   ┌───────────────┐
//	│ Mirror        │   │ Gateway       │  Mirrors answer queries from
//	│ Registry      │   │ (mutations)   │  memory; the gateway writes
//	└───────────────┘   └───────────────┘  through to the remote store
//	      ↑ snapshots          ↓ ops
//	┌─────────────────────────────────────┐
//	│            Store                    │  Remote document store:
//	│   (NATS JetStream KV or memory)     │  full-membership snapshots
//	└─────────────────────────────────────┘
//
// Every change to a collection delivers its full membership to the
// mirror, which swaps its local copy wholesale. Queries never touch the
// network; mutations never touch the mirror. The mirror converges on the
// write through a later snapshot, so a read immediately after a write may
// return the previous state.
//
// The provider package is the entry point for embedding; cmd/livemirror
// serves the same verbs over HTTP.
package livemirror
