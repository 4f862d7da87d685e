package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/pkg/logger"
)

// DatasourceRegistry resolves datasources by name.
type DatasourceRegistry interface {
	HasDatasource(name string) bool
	// Datasource fails with ErrNoSuchDatasource.
	Datasource(name string) (Datasource, error)
	// Datasources returns the datasources sorted by name.
	Datasources() []Datasource
}

// Registry owns the lifecycle of named datasources. Registered datasources are
// initialised and decorated; unregistering undecorates and disposes them.
type Registry struct {
	mu          sync.RWMutex
	datasources map[string]Datasource
	transients  map[string]Datasource
	decorators  []Decorator[Datasource]
	logger      logger.Logger
}

var _ DatasourceRegistry = (*Registry)(nil)

// RegistryOption defines a function type used for configuring a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger of the registry.
func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithDecorator appends a decorator applied to every datasource registered afterwards.
func WithDecorator(d Decorator[Datasource]) RegistryOption {
	return func(r *Registry) {
		r.decorators = append(r.decorators, d)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		datasources: map[string]Datasource{},
		transients:  map[string]Datasource{},
		logger:      logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) decorate(ds Datasource) Datasource {
	for _, d := range r.decorators {
		ds = d.Decorate(ds)
	}
	return ds
}

func (r *Registry) undecorate(ds Datasource) Datasource {
	for i := len(r.decorators) - 1; i >= 0; i-- {
		ds = r.decorators[i].Undecorate(ds)
	}
	return ds
}

// Register initialises ds and makes it available under its name. It returns the
// decorated datasource.
func (r *Registry) Register(ctx context.Context, ds Datasource) (Datasource, error) {
	name := ds.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasources[name]; ok {
		return nil, fmt.Errorf("datasource '%s': %w", name, ErrCollision)
	}

	if err := ds.Initialise(ctx); err != nil {
		return nil, fmt.Errorf("initialise datasource '%s': %w", name, err)
	}

	decorated := r.decorate(ds)
	r.datasources[name] = decorated
	r.logger.InfoWithContext(ctx, "datasource registered", zap.String("datasource", name), zap.String("type", ds.Type()))
	return decorated, nil
}

// Unregister removes the datasource and disposes it.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	ds, ok := r.datasources[name]
	delete(r.datasources, name)
	r.mu.Unlock()

	if !ok {
		return NoSuchDatasourceError(name)
	}

	r.logger.InfoWithContext(ctx, "datasource unregistered", zap.String("datasource", name))
	return r.undecorate(ds).Dispose(ctx)
}

func (r *Registry) HasDatasource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.datasources[name]
	return ok
}

func (r *Registry) Datasource(name string) (Datasource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.datasources[name]
	if !ok {
		return nil, NoSuchDatasourceError(name)
	}
	return ds, nil
}

func (r *Registry) Datasources() []Datasource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Datasource, 0, len(r.datasources))
	for _, ds := range r.datasources {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// AddTransient initialises ds and keeps it under a generated identifier. Transient
// datasources are not decorated and are not listed by Datasources.
func (r *Registry) AddTransient(ctx context.Context, ds Datasource) (string, error) {
	if err := ds.Initialise(ctx); err != nil {
		return "", fmt.Errorf("initialise transient datasource '%s': %w", ds.Name(), err)
	}

	id := ulid.Make().String()

	r.mu.Lock()
	r.transients[id] = ds
	r.mu.Unlock()

	r.logger.DebugWithContext(ctx, "transient datasource added", zap.String("id", id), zap.String("datasource", ds.Name()))
	return id, nil
}

// Transient returns the transient datasource registered under id.
func (r *Registry) Transient(id string) (Datasource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.transients[id]
	if !ok {
		return nil, NoSuchDatasourceError(id)
	}
	return ds, nil
}

// RemoveTransient disposes the transient datasource registered under id.
func (r *Registry) RemoveTransient(ctx context.Context, id string) error {
	r.mu.Lock()
	ds, ok := r.transients[id]
	delete(r.transients, id)
	r.mu.Unlock()

	if !ok {
		return NoSuchDatasourceError(id)
	}
	return ds.Dispose(ctx)
}

// Close unregisters and disposes every datasource, transient ones included.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	datasources := r.datasources
	transients := r.transients
	r.datasources = map[string]Datasource{}
	r.transients = map[string]Datasource{}
	r.mu.Unlock()

	var errs []error
	for name, ds := range datasources {
		if err := r.undecorate(ds).Dispose(ctx); err != nil {
			r.logger.ErrorWithContext(ctx, "failed to dispose datasource", zap.String("datasource", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	for _, ds := range transients {
		if err := ds.Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reference points at a datasource, a table, and optionally a variable:
// "datasource.table" or "datasource.table:variable".
type Reference struct {
	Datasource string
	Table      string
	Variable   string
}

// ParseReference parses a fully qualified table or variable reference.
func ParseReference(ref string) (Reference, error) {
	var r Reference
	rest := ref
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		r.Variable = rest[i+1:]
		rest = rest[:i]
		if r.Variable == "" {
			return Reference{}, fmt.Errorf("empty variable in reference '%s': %w", ref, ErrInvalidArgument)
		}
	}
	i := strings.IndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return Reference{}, fmt.Errorf("reference '%s' is not of the form datasource.table[:variable]: %w", ref, ErrInvalidArgument)
	}
	r.Datasource = rest[:i]
	r.Table = rest[i+1:]
	return r, nil
}

func (r Reference) String() string {
	s := r.Datasource + "." + r.Table
	if r.Variable != "" {
		s += ":" + r.Variable
	}
	return s
}

// LookupTable resolves "datasource.table".
func LookupTable(reg DatasourceRegistry, ref string) (ValueTable, error) {
	r, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}
	ds, err := reg.Datasource(r.Datasource)
	if err != nil {
		return nil, err
	}
	return ds.ValueTable(r.Table)
}

// LookupVariable resolves "datasource.table:variable".
func LookupVariable(reg DatasourceRegistry, ref string) (ValueTable, VariableValueSource, error) {
	r, err := ParseReference(ref)
	if err != nil {
		return nil, nil, err
	}
	if r.Variable == "" {
		return nil, nil, fmt.Errorf("reference '%s' names no variable: %w", ref, ErrInvalidArgument)
	}
	ds, err := reg.Datasource(r.Datasource)
	if err != nil {
		return nil, nil, err
	}
	table, err := ds.ValueTable(r.Table)
	if err != nil {
		return nil, nil, err
	}
	src, err := table.VariableValueSource(r.Variable)
	if err != nil {
		return nil, nil, err
	}
	return table, src, nil
}
