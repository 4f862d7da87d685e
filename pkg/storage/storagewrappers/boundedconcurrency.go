package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/datavirt/datavirt/internal/build"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
)

var timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: build.ProjectName,
	Name:      "time_waiting_for_vector_cursors",
	Help:      "Time (in ms) spent waiting for a free vector cursor slot",
	Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000}, // milliseconds
})

// BoundedConcurrencyDatasource limits the number of vector cursors open at once.
type BoundedConcurrencyDatasource struct {
	*datasource
	limiter chan struct{}
}

var _ storage.DatasourceWrapper = (*BoundedConcurrencyDatasource)(nil)

// NewBoundedConcurrencyDatasource returns a wrapper over a datasource that makes sure that there are, at most,
// n vector iterators open at once. A slot is held from Values until the iterator is exhausted, fails or is stopped.
// Consumers can then rest assured that one client will not hoard all the database connections available.
func NewBoundedConcurrencyDatasource(wrapped storage.Datasource, n uint32) *BoundedConcurrencyDatasource {
	if n == 0 {
		n = 1
	}
	b := &BoundedConcurrencyDatasource{limiter: make(chan struct{}, n)}
	b.datasource = &datasource{
		Datasource: wrapped,
		self:       b,
		wrapTable: func(ds storage.Datasource, t storage.ValueTable) storage.ValueTable {
			return &table{ValueTable: t, ds: ds, wrapSource: b.wrapSource}
		},
	}
	return b
}

func (b *BoundedConcurrencyDatasource) wrapSource(_ storage.ValueTable, src storage.VariableValueSource) storage.VariableValueSource {
	return &boundedSource{VariableValueSource: src, b: b}
}

// acquire waits for a free slot.
func (b *BoundedConcurrencyDatasource) acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("time_waiting", timeWaiting))
	return nil
}

func (b *BoundedConcurrencyDatasource) release() {
	<-b.limiter
}

type boundedSource struct {
	storage.VariableValueSource
	b *BoundedConcurrencyDatasource
}

func (s *boundedSource) VectorSource() storage.VectorSource {
	vs := s.VariableValueSource.VectorSource()
	if vs == nil {
		return nil
	}
	return &boundedVector{VectorSource: vs, b: s.b}
}

type boundedVector struct {
	storage.VectorSource
	b *BoundedConcurrencyDatasource
}

func (v *boundedVector) Values(ctx context.Context, entities []entity.Entity) (storage.ValueIterator, error) {
	if err := v.b.acquire(ctx); err != nil {
		return nil, err
	}
	it, err := v.VectorSource.Values(ctx, entities)
	if err != nil {
		v.b.release()
		return nil, err
	}
	return newReleasingIterator(it, v.b.release), nil
}
