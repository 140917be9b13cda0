// Package mirror implements the live mirror and resource registry: one
// lazily established subscription per named resource, an in-memory copy of
// that resource's documents replaced wholesale on every remote snapshot,
// and lock-free point-in-time reads for the query engine.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/record"
	"github.com/c360/livemirror/store"
)

// Mirror holds the local copy of one resource's documents. The backing
// slice is immutable once stored: the subscription goroutine builds a
// brand-new slice per snapshot and swaps the pointer, so readers always
// observe one internally consistent snapshot without locking.
type Mirror struct {
	resource string
	records  atomic.Pointer[[]record.Record]

	ready     chan struct{}
	readyOnce sync.Once

	done chan struct{}

	logger  *slog.Logger
	metrics *metric.Metrics
}

func newMirror(resource string, logger *slog.Logger, metrics *metric.Metrics) *Mirror {
	return &Mirror{
		resource: resource,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
		metrics:  metrics,
	}
}

// Resource returns the resource name this mirror tracks.
func (m *Mirror) Resource() string {
	return m.resource
}

// Records returns the current snapshot. The returned slice must be treated
// as read-only; it is shared with every concurrent reader.
func (m *Mirror) Records() []record.Record {
	p := m.records.Load()
	if p == nil {
		return nil
	}
	return *p
}

// WaitReady blocks until the first snapshot has been applied, the mirror's
// subscription ends, or ctx is done.
func (m *Mirror) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-m.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run consumes the subscription channel until it closes. Single writer:
// only this goroutine ever stores to m.records.
func (m *Mirror) run(ch <-chan store.Snapshot) {
	defer close(m.done)

	for snap := range ch {
		start := time.Now()
		records := record.ParseSnapshot(snap)
		m.records.Store(&records)
		m.readyOnce.Do(func() { close(m.ready) })

		if m.metrics != nil {
			m.metrics.SnapshotsApplied.WithLabelValues(m.resource).Inc()
			m.metrics.RecordsMirrored.WithLabelValues(m.resource).Set(float64(len(records)))
			m.metrics.SnapshotApply.Observe(time.Since(start).Seconds())
		}
		m.logger.Debug("applied snapshot",
			"resource", m.resource,
			"records", len(records),
		)
	}

	m.logger.Info("subscription ended", "resource", m.resource)
}
