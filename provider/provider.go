// Package provider is the facade the UI data-binding layer talks to: one
// method per verb, plus a dispatch table translating the fixed verb names
// into those methods. Reads are answered from the local mirror after the
// registry guarantees it is populated; writes go straight to the remote
// store through the mutation gateway.
package provider

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/gateway"
	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/mirror"
	"github.com/c360/livemirror/query"
	"github.com/c360/livemirror/record"
	"github.com/c360/livemirror/store"
)

// Verb names as the UI framework sends them.
const (
	VerbGetList          = "getList"
	VerbGetOne           = "getOne"
	VerbGetMany          = "getMany"
	VerbGetManyReference = "getManyReference"
	VerbCreate           = "create"
	VerbUpdate           = "update"
	VerbUpdateMany       = "updateMany"
	VerbDelete           = "delete"
	VerbDeleteMany       = "deleteMany"
)

// GetListParams carries the list verb's parameters.
type GetListParams struct {
	Pagination query.Pagination `json:"pagination"`
	Sort       query.Sort       `json:"sort"`
	Filter     query.Filter     `json:"filter"`
}

// GetOneParams carries the get-one verb's parameters.
type GetOneParams struct {
	ID string `json:"id"`
}

// GetManyParams carries the get-many verb's parameters.
type GetManyParams struct {
	IDs []string `json:"ids"`
}

// GetManyReferenceParams carries the reference verb's parameters: records
// whose Target field equals ID.
type GetManyReferenceParams struct {
	Target     string           `json:"target"`
	ID         any              `json:"id"`
	Pagination query.Pagination `json:"pagination"`
	Sort       query.Sort       `json:"sort"`
}

// CreateParams carries the create verb's parameters.
type CreateParams struct {
	Data map[string]any `json:"data"`
}

// UpdateParams carries the update verb's parameters.
type UpdateParams struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// UpdateManyParams carries the update-many verb's parameters.
type UpdateManyParams struct {
	IDs  []string       `json:"ids"`
	Data map[string]any `json:"data"`
}

// DeleteParams carries the delete verb's parameters. PreviousData is
// echoed back as the response body.
type DeleteParams struct {
	ID           string         `json:"id"`
	PreviousData map[string]any `json:"previousData"`
}

// DeleteManyParams carries the delete-many verb's parameters.
type DeleteManyParams struct {
	IDs []string `json:"ids"`
}

// ListResponse is the response of list-like verbs: a page of records plus
// a total per the query engine's contract.
type ListResponse struct {
	Data  []record.Record `json:"data"`
	Total int             `json:"total"`
}

// RecordResponse is the response of single-record verbs.
type RecordResponse struct {
	Data record.Record `json:"data"`
}

// RecordsResponse is the response of multi-record verbs without a total.
type RecordsResponse struct {
	Data []record.Record `json:"data"`
}

// Provider routes verbs to the registry, query engine and gateway.
type Provider struct {
	registry *mirror.Registry
	gateway  *gateway.Gateway
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics attaches verb counters
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

// New creates a Provider over a remote store: one registry for reads, one
// gateway for writes.
func New(s store.Store, opts ...Option) *Provider {
	p := &Provider{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	regOpts := []mirror.Option{mirror.WithLogger(p.logger)}
	if p.metrics != nil {
		regOpts = append(regOpts, mirror.WithMetrics(p.metrics))
	}
	p.registry = mirror.NewRegistry(s, regOpts...)
	p.gateway = gateway.New(s, gateway.WithLogger(p.logger))
	return p
}

// Registry exposes the resource registry for lifecycle management
// (EnsureAll warm-up, Release, Close).
func (p *Provider) Registry() *mirror.Registry {
	return p.registry
}

// Close tears down every live subscription.
func (p *Provider) Close() {
	p.registry.Close()
}

// snapshot ensures the resource's mirror is live and returns its current
// records.
func (p *Provider) snapshot(ctx context.Context, resource string) ([]record.Record, error) {
	if err := p.registry.EnsureReady(ctx, resource); err != nil {
		return nil, err
	}
	m, err := p.registry.Get(resource)
	if err != nil {
		return nil, err
	}
	return m.Records(), nil
}

// GetList answers a filtered, sorted, paginated list from the mirror.
func (p *Provider) GetList(ctx context.Context, resource string, params GetListParams) (*ListResponse, error) {
	p.countQuery(VerbGetList, resource)
	records, err := p.snapshot(ctx, resource)
	if err != nil {
		return nil, p.fail(VerbGetList, resource, err)
	}

	result := query.List(records, query.ListParams{
		Pagination: params.Pagination,
		Sort:       params.Sort,
		Filter:     params.Filter,
	})
	return &ListResponse{Data: result.Data, Total: result.Total}, nil
}

// GetOne answers a single-record lookup from the mirror.
func (p *Provider) GetOne(ctx context.Context, resource string, params GetOneParams) (*RecordResponse, error) {
	p.countQuery(VerbGetOne, resource)
	records, err := p.snapshot(ctx, resource)
	if err != nil {
		return nil, p.fail(VerbGetOne, resource, err)
	}

	rec, err := query.GetOne(records, params.ID)
	if err != nil {
		return nil, p.fail(VerbGetOne, resource, err)
	}
	return &RecordResponse{Data: rec}, nil
}

// GetMany answers an id-set lookup from the mirror, in snapshot order.
func (p *Provider) GetMany(ctx context.Context, resource string, params GetManyParams) (*RecordsResponse, error) {
	p.countQuery(VerbGetMany, resource)
	records, err := p.snapshot(ctx, resource)
	if err != nil {
		return nil, p.fail(VerbGetMany, resource, err)
	}
	return &RecordsResponse{Data: query.GetMany(records, params.IDs)}, nil
}

// GetManyReference answers a reference query from the mirror.
func (p *Provider) GetManyReference(ctx context.Context, resource string, params GetManyReferenceParams) (*ListResponse, error) {
	p.countQuery(VerbGetManyReference, resource)
	records, err := p.snapshot(ctx, resource)
	if err != nil {
		return nil, p.fail(VerbGetManyReference, resource, err)
	}

	result := query.GetManyReference(records, query.ReferenceParams{
		Target:     params.Target,
		ID:         params.ID,
		Pagination: params.Pagination,
		Sort:       params.Sort,
	})
	return &ListResponse{Data: result.Data, Total: result.Total}, nil
}

// Create writes a new document remote-direct and synthesizes the response.
// The resource's mirror is established as a side effect so the change
// becomes locally observable once the next snapshot arrives.
func (p *Provider) Create(ctx context.Context, resource string, params CreateParams) (*RecordResponse, error) {
	p.countMutation(VerbCreate, resource)
	if err := p.registry.EnsureReady(ctx, resource); err != nil {
		return nil, p.fail(VerbCreate, resource, err)
	}

	rec, err := p.gateway.Create(ctx, resource, params.Data)
	if err != nil {
		return nil, p.fail(VerbCreate, resource, err)
	}
	return &RecordResponse{Data: rec}, nil
}

// Update writes to an existing document remote-direct.
func (p *Provider) Update(ctx context.Context, resource string, params UpdateParams) (*RecordResponse, error) {
	p.countMutation(VerbUpdate, resource)
	if err := p.registry.EnsureReady(ctx, resource); err != nil {
		return nil, p.fail(VerbUpdate, resource, err)
	}

	rec, err := p.gateway.Update(ctx, resource, params.ID, params.Data)
	if err != nil {
		return nil, p.fail(VerbUpdate, resource, err)
	}
	return &RecordResponse{Data: rec}, nil
}

// UpdateMany applies the same data to each id, one write per id.
func (p *Provider) UpdateMany(ctx context.Context, resource string, params UpdateManyParams) (*RecordsResponse, error) {
	p.countMutation(VerbUpdateMany, resource)
	if err := p.registry.EnsureReady(ctx, resource); err != nil {
		return nil, p.fail(VerbUpdateMany, resource, err)
	}

	recs, err := p.gateway.UpdateMany(ctx, resource, params.IDs, params.Data)
	if err != nil {
		return nil, p.fail(VerbUpdateMany, resource, err)
	}
	return &RecordsResponse{Data: recs}, nil
}

// Delete removes one document and echoes the caller's previous data.
func (p *Provider) Delete(ctx context.Context, resource string, params DeleteParams) (*RecordResponse, error) {
	p.countMutation(VerbDelete, resource)
	if err := p.registry.EnsureReady(ctx, resource); err != nil {
		return nil, p.fail(VerbDelete, resource, err)
	}

	rec, err := p.gateway.Delete(ctx, resource, params.ID, params.PreviousData)
	if err != nil {
		return nil, p.fail(VerbDelete, resource, err)
	}
	return &RecordResponse{Data: rec}, nil
}

// DeleteMany removes a set of documents in one atomic batch write.
func (p *Provider) DeleteMany(ctx context.Context, resource string, params DeleteManyParams) (*RecordsResponse, error) {
	p.countMutation(VerbDeleteMany, resource)
	if err := p.registry.EnsureReady(ctx, resource); err != nil {
		return nil, p.fail(VerbDeleteMany, resource, err)
	}

	recs, err := p.gateway.DeleteMany(ctx, resource, params.IDs)
	if err != nil {
		return nil, p.fail(VerbDeleteMany, resource, err)
	}
	return &RecordsResponse{Data: recs}, nil
}

// Dispatch routes a raw verb call, decoding params into the verb's
// parameter record. This is the entry point for transport layers that
// carry verbs by name.
func (p *Provider) Dispatch(ctx context.Context, verb, resource string, rawParams json.RawMessage) (any, error) {
	switch verb {
	case VerbGetList:
		var params GetListParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.GetList(ctx, resource, params)

	case VerbGetOne:
		var params GetOneParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.GetOne(ctx, resource, params)

	case VerbGetMany:
		var params GetManyParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.GetMany(ctx, resource, params)

	case VerbGetManyReference:
		var params GetManyReferenceParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.GetManyReference(ctx, resource, params)

	case VerbCreate:
		var params CreateParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.Create(ctx, resource, params)

	case VerbUpdate:
		var params UpdateParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.Update(ctx, resource, params)

	case VerbUpdateMany:
		var params UpdateManyParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.UpdateMany(ctx, resource, params)

	case VerbDelete:
		var params DeleteParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.Delete(ctx, resource, params)

	case VerbDeleteMany:
		var params DeleteManyParams
		if err := decode(rawParams, &params); err != nil {
			return nil, err
		}
		return p.DeleteMany(ctx, resource, params)

	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidVerb, "Provider", "Dispatch", "route verb "+verb)
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.WrapInvalid(err, "Provider", "Dispatch", "decode params")
	}
	return nil
}

func (p *Provider) countQuery(verb, resource string) {
	if p.metrics != nil {
		p.metrics.QueriesTotal.WithLabelValues(verb, resource).Inc()
	}
}

func (p *Provider) countMutation(verb, resource string) {
	if p.metrics != nil {
		p.metrics.MutationsTotal.WithLabelValues(verb, resource).Inc()
	}
}

func (p *Provider) fail(verb, resource string, err error) error {
	if p.metrics != nil {
		p.metrics.ErrorsTotal.WithLabelValues(verb, resource).Inc()
	}
	p.logger.Debug("verb failed", "verb", verb, "resource", resource, "error", err)
	return err
}
