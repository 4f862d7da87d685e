// Package derived computes variables from CEL expressions over the other variables of
// a table. An expression sees each variable of the table whose name is a valid CEL
// identifier, bound to the value of the evaluated entity, plus the entity identifier
// as _id:
//
//	weight / ((height / 100.0) * (height / 100.0))
//	age == null ? 0 : age * 12
//
// Scalar variables of primitive types are nullable; other variables are dynamic.
package derived

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/vector"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

var tracer = otel.Tracer("pkg/derived")

const (
	// ScriptAttribute is the variable attribute holding the expression of a derived
	// variable.
	ScriptAttribute = "script"

	// IDVariable is bound to the identifier of the evaluated entity.
	IDVariable = "_id"
)

var identifierPattern = regexp.MustCompile(`^[_a-zA-Z][_a-zA-Z0-9]*$`)

// Source reads a derived variable. It streams vectors by zipping the vectors of the
// variables its expression references.
type Source struct {
	v          *variable.Variable
	table      storage.ValueTable
	expression string
	program    cel.Program
	inputs     []storage.VariableValueSource
}

var (
	_ storage.VariableValueSource = (*Source)(nil)
	_ storage.VectorSource        = (*Source)(nil)
)

// NewSource compiles expression against the variables of table.
func NewSource(table storage.ValueTable, v *variable.Variable, expression string) (*Source, error) {
	s := &Source{v: v, table: table, expression: expression}
	if err := s.compile(); err != nil {
		return nil, &CompilationError{Variable: v.Name(), Cause: err}
	}
	return s, nil
}

func (s *Source) compile() error {
	declared := map[string]storage.VariableValueSource{}
	sources := s.table.VariableValueSources()

	opts := []cel.EnvOption{cel.Variable(IDVariable, cel.StringType)}
	for _, src := range sources {
		name := src.Variable().Name()
		if name == s.v.Name() || name == IDVariable || !identifierPattern.MatchString(name) {
			continue
		}
		declared[name] = src
		opts = append(opts, cel.Variable(name, celType(src.Variable())))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return err
	}

	ast, issues := env.CompileSource(common.NewStringSource(s.expression, s.v.Name()))
	if issues != nil {
		if err := issues.Err(); err != nil {
			return err
		}
	}

	s.program, err = env.Program(ast)
	if err != nil {
		return fmt.Errorf("expression construction: %w", err)
	}

	referenced := map[string]bool{}
	for _, ref := range ast.NativeRep().ReferenceMap() {
		if _, ok := declared[ref.Name]; ok {
			referenced[ref.Name] = true
		}
	}
	for _, src := range sources {
		if referenced[src.Variable().Name()] {
			s.inputs = append(s.inputs, src)
		}
	}
	return nil
}

func (s *Source) Variable() *variable.Variable { return s.v }

func (s *Source) ValueType() *value.Type { return s.v.ValueType() }

// Expression returns the source of the expression.
func (s *Source) Expression() string { return s.expression }

// References returns the names of the variables the expression reads, in table order.
func (s *Source) References() []string {
	names := make([]string, len(s.inputs))
	for i, src := range s.inputs {
		names[i] = src.Variable().Name()
	}
	return names
}

func (s *Source) Value(ctx context.Context, vs storage.ValueSet) (value.Value, error) {
	ctx, span := tracer.Start(ctx, "derived.Value", trace.WithAttributes(
		attribute.String("variable", s.v.Name()),
	))
	defer span.End()

	values := make([]value.Value, len(s.inputs))
	for i, src := range s.inputs {
		v, err := src.Value(ctx, vs)
		if err != nil {
			return value.Value{}, err
		}
		values[i] = v
	}
	return s.evaluate(vs.Entity, values)
}

func (s *Source) VectorSource() storage.VectorSource { return s }

// Values opens the vectors of the referenced variables. Inputs without a vector source
// are read one entity at a time.
func (s *Source) Values(ctx context.Context, entities []entity.Entity) (storage.ValueIterator, error) {
	it := &zipIterator{src: s, entities: entities, inputs: make([]storage.ValueIterator, 0, len(s.inputs))}
	for _, in := range s.inputs {
		if vs := in.VectorSource(); vs != nil {
			values, err := vs.Values(ctx, entities)
			if err != nil {
				it.Stop()
				return nil, err
			}
			it.inputs = append(it.inputs, values)
			continue
		}

		it.inputs = append(it.inputs, vector.PerEntity(entities, func(ctx context.Context, e entity.Entity) (value.Value, error) {
			return in.Value(ctx, storage.ValueSet{Table: s.table, Entity: e})
		}))
	}
	return it, nil
}

func (s *Source) evaluate(e entity.Entity, values []value.Value) (value.Value, error) {
	activation := make(map[string]any, len(values)+1)
	activation[IDVariable] = e.Identifier
	for i, v := range values {
		in, err := toCEL(v)
		if err != nil {
			return value.Value{}, &EvaluationError{Variable: s.v.Name(), Entity: e.String(), Cause: err}
		}
		activation[s.inputs[i].Variable().Name()] = in
	}

	out, _, err := s.program.Eval(activation)
	if err != nil {
		// A failure on missing data is a missing result.
		if slices.ContainsFunc(values, value.Value.IsNull) {
			return s.v.NullValue(), nil
		}
		return value.Value{}, &EvaluationError{Variable: s.v.Name(), Entity: e.String(), Cause: err}
	}

	v, err := fromCEL(out, s.v)
	if err != nil {
		return value.Value{}, &EvaluationError{Variable: s.v.Name(), Entity: e.String(), Cause: err}
	}
	return v, nil
}

type zipIterator struct {
	src      *Source
	entities []entity.Entity
	inputs   []storage.ValueIterator
	pos      int
	once     sync.Once
}

func (z *zipIterator) Next(ctx context.Context) (value.Value, error) {
	if z.pos >= len(z.entities) {
		z.Stop()
		return value.Value{}, storage.ErrIteratorDone
	}
	if err := ctx.Err(); err != nil {
		return value.Value{}, err
	}

	values := make([]value.Value, len(z.inputs))
	for i, in := range z.inputs {
		v, err := in.Next(ctx)
		if err != nil {
			z.Stop()
			if errors.Is(err, storage.ErrIteratorDone) {
				return value.Value{}, storage.RuntimeError("vector of %s ended before entity %d", z.src.inputs[i].Variable().Name(), z.pos)
			}
			return value.Value{}, err
		}
		values[i] = v
	}

	e := z.entities[z.pos]
	z.pos++
	v, err := z.src.evaluate(e, values)
	if err != nil {
		z.Stop()
		return value.Value{}, err
	}
	return v, nil
}

func (z *zipIterator) Stop() {
	z.once.Do(func() {
		z.pos = len(z.entities)
		for _, in := range slices.Backward(z.inputs) {
			in.Stop()
		}
	})
}
