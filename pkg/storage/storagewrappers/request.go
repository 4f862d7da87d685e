package storagewrappers

import (
	"github.com/datavirt/datavirt/pkg/storage"
)

// RequestDatasource uses the decorator pattern to wrap a Datasource with various functionalities,
// which includes exposing metrics.
type RequestDatasource struct {
	storage.Datasource
	InstrumentedStorage
}

var _ InstrumentedStorage = (*RequestDatasource)(nil)

// NewRequestDatasource wraps ds for the reads of one request. Values are read through
// the cache when one is given, configured by opts; the read counts reflect the reads
// that missed it.
func NewRequestDatasource(ds storage.Datasource, maxConcurrentVectors uint32, cache storage.InMemoryCache[any], opts ...CachedDatasourceOpt) (*RequestDatasource, error) {
	var a storage.Datasource = NewBoundedConcurrencyDatasource(ds, maxConcurrentVectors) // to rate-limit cursors
	b := NewInstrumentedDatasource(a)                                                    // to capture metrics

	var c storage.Datasource = b
	if cache != nil {
		cached, err := NewCachedDatasource(b, append([]CachedDatasourceOpt{WithCache(cache)}, opts...)...) // to read values from cache
		if err != nil {
			return nil, err
		}
		c = cached
	}

	return &RequestDatasource{
		Datasource:          c,
		InstrumentedStorage: b,
	}, nil
}

func (s *RequestDatasource) GetMetrics() Metrics {
	return s.InstrumentedStorage.GetMetrics()
}

// Unwrap returns the outermost wrapper of the chain.
func (s *RequestDatasource) Unwrap() storage.Datasource {
	return s.Datasource
}
