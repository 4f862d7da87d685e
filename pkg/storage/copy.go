package storage

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

var tracer = otel.Tracer("pkg/storage")

const defaultCopyBatchSize = 500

type copyOptions struct {
	batchSize   int
	concurrency int
	variables   []*variable.Variable
}

// CopyOption configures CopyTable.
type CopyOption func(*copyOptions)

// WithCopyBatchSize sets the number of entities whose vectors are read at once.
func WithCopyBatchSize(n int) CopyOption {
	return func(o *copyOptions) {
		o.batchSize = n
	}
}

// WithCopyConcurrency bounds the number of vectors read in parallel. A non positive n
// defaults to GOMAXPROCS.
func WithCopyConcurrency(n int) CopyOption {
	return func(o *copyOptions) {
		o.concurrency = n
	}
}

// WithCopyVariables restricts the copy to variables, all variables of the source table
// by default.
func WithCopyVariables(variables ...*variable.Variable) CopyOption {
	return func(o *copyOptions) {
		o.variables = variables
	}
}

// CopyTable writes the variables and value sets of src into the table name of dst,
// creating it when missing, and returns the number of value sets written. Null values
// are not written.
func CopyTable(ctx context.Context, src ValueTable, dst Datasource, name string, opts ...CopyOption) (int, error) {
	ctx, span := tracer.Start(ctx, "storage.CopyTable", trace.WithAttributes(
		attribute.String("source", src.Datasource().Name()+"."+src.Name()),
		attribute.String("destination", dst.Name()+"."+name),
	))
	defer span.End()

	o := copyOptions{batchSize: defaultCopyBatchSize, concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultCopyBatchSize
	}
	if o.concurrency <= 0 {
		o.concurrency = runtime.GOMAXPROCS(0)
	}
	if o.variables == nil {
		o.variables = src.Variables()
	}

	sources := make([]VariableValueSource, len(o.variables))
	for i, v := range o.variables {
		s, err := src.VariableValueSource(v.Name())
		if err != nil {
			return 0, err
		}
		sources[i] = s
	}

	entities, err := src.VariableEntities(ctx)
	if err != nil {
		return 0, err
	}

	w, err := dst.CreateWriter(ctx, name, src.EntityType())
	if err != nil {
		return 0, err
	}
	for _, v := range o.variables {
		if err := w.WriteVariable(ctx, v); err != nil {
			_ = w.Close(ctx)
			return 0, err
		}
	}

	written := 0
	for start := 0; start < len(entities); start += o.batchSize {
		batch := entities[start:min(start+o.batchSize, len(entities))]
		n, err := copyBatch(ctx, src, w, o, sources, batch)
		written += n
		if err != nil {
			_ = w.Close(ctx)
			return written, err
		}
	}
	span.SetAttributes(attribute.Int("value_sets", written))
	return written, w.Close(ctx)
}

// copyBatch reads the vectors of a batch in parallel, then writes its value sets in
// entity order.
func copyBatch(ctx context.Context, src ValueTable, w ValueTableWriter, o copyOptions, sources []VariableValueSource, batch []entity.Entity) (int, error) {
	columns := make([][]value.Value, len(sources))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(o.concurrency)
	for i, s := range sources {
		p.Go(func(ctx context.Context) error {
			values, err := ReadValues(ctx, src, s, batch)
			columns[i] = values
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}

	for row, e := range batch {
		vsw, err := w.WriteValueSet(ctx, e)
		if err != nil {
			return row, err
		}
		for i, v := range o.variables {
			if val := columns[i][row]; !val.IsNull() {
				if err := vsw.WriteValue(ctx, v, val); err != nil {
					return row, err
				}
			}
		}
		if err := vsw.Close(ctx); err != nil {
			return row, err
		}
	}
	return len(batch), nil
}
