package storagewrappers

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/datavirt/datavirt/internal/build"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
)

var readsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: build.ProjectName,
	Name:      "datasource_reads_total",
	Help:      "The total number of value and vector reads issued to datasources.",
}, []string{"datasource", "operation"})

// InstrumentedStorage exposes the read counts of a wrapped datasource.
type InstrumentedStorage interface {
	GetMetrics() Metrics
}

type Metrics struct {
	ValueReadCount  uint32
	VectorReadCount uint32
}

// InstrumentedDatasource counts the reads issued through it.
type InstrumentedDatasource struct {
	*datasource
	countValues  atomic.Uint32
	countVectors atomic.Uint32
}

var (
	_ storage.DatasourceWrapper = (*InstrumentedDatasource)(nil)
	_ InstrumentedStorage       = (*InstrumentedDatasource)(nil)
)

// NewInstrumentedDatasource creates a new instance of InstrumentedDatasource that wraps the specified datasource and maintains metrics per request.
// InstrumentedDatasource is thread-safe but should not be shared across multiple requests.
// It is crucial that the wrapped object does NOT return results from an in-memory cache for this object to return accurate metrics.
func NewInstrumentedDatasource(wrapped storage.Datasource) *InstrumentedDatasource {
	m := &InstrumentedDatasource{}
	m.datasource = &datasource{
		Datasource: wrapped,
		self:       m,
		wrapTable: func(ds storage.Datasource, t storage.ValueTable) storage.ValueTable {
			return &table{ValueTable: t, ds: ds, wrapSource: m.wrapSource}
		},
	}
	return m
}

func (m *InstrumentedDatasource) GetMetrics() Metrics {
	return Metrics{
		ValueReadCount:  m.countValues.Load(),
		VectorReadCount: m.countVectors.Load(),
	}
}

func (m *InstrumentedDatasource) wrapSource(_ storage.ValueTable, src storage.VariableValueSource) storage.VariableValueSource {
	return &instrumentedSource{VariableValueSource: src, m: m}
}

type instrumentedSource struct {
	storage.VariableValueSource
	m *InstrumentedDatasource
}

func (s *instrumentedSource) Value(ctx context.Context, vs storage.ValueSet) (value.Value, error) {
	s.m.countValues.Add(1)
	readsCounter.WithLabelValues(s.m.Name(), "value").Inc()

	return s.VariableValueSource.Value(ctx, vs)
}

func (s *instrumentedSource) VectorSource() storage.VectorSource {
	vs := s.VariableValueSource.VectorSource()
	if vs == nil {
		return nil
	}
	return &instrumentedVector{VectorSource: vs, m: s.m}
}

type instrumentedVector struct {
	storage.VectorSource
	m *InstrumentedDatasource
}

func (v *instrumentedVector) Values(ctx context.Context, entities []entity.Entity) (storage.ValueIterator, error) {
	v.m.countVectors.Add(1)
	readsCounter.WithLabelValues(v.m.Name(), "vector").Inc()

	return v.VectorSource.Values(ctx, entities)
}
