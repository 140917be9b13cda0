package mirror

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/store"
)

// Registry maps resource names to live mirrors. Mirrors are created
// lazily on first EnsureReady, memoized, and reference-counted: Release
// drops interest and tears the subscription down at zero, Close tears
// everything down. Resource names double as the remote collection path.
type Registry struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// entry tracks one resource's mirror and its in-flight initialization.
// The placeholder is installed under the registry lock before the
// subscription is opened, so concurrent first calls for the same name
// collapse onto one initialization instead of racing to subscribe twice.
type entry struct {
	mirror   *Mirror
	cancel   context.CancelFunc
	refs     int
	initDone chan struct{}
	initErr  error
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the structured logger used by the registry and its mirrors
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches metrics to the registry and its mirrors
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a registry over the given remote store.
func NewRegistry(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:   s,
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureReady makes sure the named resource has a live, populated mirror.
// The first call for a name opens the subscription and blocks until the
// first snapshot has been parsed in, so a query issued right after never
// observes an empty not-yet-synced mirror. Subsequent calls return
// immediately. Idempotent per name; concurrent first calls share one
// subscription.
func (r *Registry) EnsureReady(ctx context.Context, name string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.WrapFatal(errors.ErrRegistryClosed, "Registry", "EnsureReady", "check registry state")
	}

	if e, ok := r.entries[name]; ok {
		r.mu.Unlock()
		return r.awaitInit(ctx, e)
	}

	// Install the placeholder before subscribing; concurrent callers for
	// the same name will wait on initDone instead of subscribing again.
	e := &entry{
		refs:     1,
		initDone: make(chan struct{}),
	}
	r.entries[name] = e
	r.mu.Unlock()

	r.initialize(ctx, name, e)
	return r.awaitInit(ctx, e)
}

// initialize opens the subscription and waits for the first snapshot.
// Runs outside the registry lock; exactly one caller per entry.
func (r *Registry) initialize(ctx context.Context, name string, e *entry) {
	defer close(e.initDone)

	// Subscription lifetime is owned by the registry, not the caller.
	subCtx, cancel := context.WithCancel(context.Background())

	ch, err := r.store.Subscribe(subCtx, name)
	if err != nil {
		cancel()
		e.initErr = errors.WrapTransient(err, "Registry", "EnsureReady", "subscribe to collection")
		r.remove(name, e)
		return
	}

	m := newMirror(name, r.logger, r.metrics)
	go m.run(ch)

	if err := m.WaitReady(ctx); err != nil {
		cancel()
		e.initErr = errors.WrapTransient(err, "Registry", "EnsureReady", "await first snapshot")
		r.remove(name, e)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		e.initErr = errors.WrapFatal(errors.ErrRegistryClosed, "Registry", "EnsureReady", "registry closed during initialization")
		return
	}
	e.mirror = m
	e.cancel = cancel
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ResourcesActive.Inc()
	}
	r.logger.Info("resource ready",
		"resource", name,
		"records", len(m.Records()),
	)
}

// awaitInit waits for an entry's initialization to settle.
func (r *Registry) awaitInit(ctx context.Context, e *entry) error {
	select {
	case <-e.initDone:
		return e.initErr
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Registry", "EnsureReady", "await initialization")
	}
}

// EnsureAll warms several resources concurrently. Useful at startup with
// a configured resource list.
func (r *Registry) EnsureAll(ctx context.Context, names ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			return r.EnsureReady(gctx, name)
		})
	}
	return g.Wait()
}

// Get returns the named resource's mirror. Fails with a not-initialized
// error if EnsureReady never completed for the name.
func (r *Registry) Get(name string) (*Mirror, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()

	if !ok || e.mirror == nil {
		return nil, errors.NewNotInitialized(name)
	}
	return e.mirror, nil
}

// Acquire registers additional interest in a resource so that a Release
// by another holder does not tear its subscription down.
func (r *Registry) Acquire(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e.mirror == nil {
		return errors.NewNotInitialized(name)
	}
	e.refs++
	return nil
}

// Release drops one interest in a resource. At zero the subscription is
// cancelled and the mirror forgotten; a later EnsureReady re-subscribes
// from scratch.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrDuplicateRelease, "Registry", "Release", "lookup resource")
	}
	if e.mirror == nil {
		// Initialization still in flight; interest cannot be dropped yet.
		r.mu.Unlock()
		return errors.NewNotInitialized(name)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, name)
	r.mu.Unlock()

	r.teardown(name, e)
	return nil
}

// Resources returns the names with a live mirror, for introspection.
func (r *Registry) Resources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.mirror != nil {
			names = append(names, name)
		}
	}
	return names
}

// Close cancels every subscription and empties the registry. Subsequent
// EnsureReady calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for name, e := range entries {
		r.teardown(name, e)
	}
}

// remove discards a failed placeholder so a later call can retry.
func (r *Registry) remove(name string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[name]; ok && cur == e {
		delete(r.entries, name)
	}
}

func (r *Registry) teardown(name string, e *entry) {
	if e.cancel != nil {
		e.cancel()
	}
	if e.mirror != nil {
		<-e.mirror.done
		if r.metrics != nil {
			r.metrics.ResourcesActive.Dec()
			r.metrics.RecordsMirrored.DeleteLabelValues(name)
		}
	}
	r.logger.Info("resource released", "resource", name)
}
