package derived

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func celType(v *variable.Variable) *cel.Type {
	if v.IsRepeatable() {
		return cel.DynType
	}
	switch v.ValueType() {
	case value.Text, value.Locale:
		return cel.NullableType(cel.StringType)
	case value.Integer:
		return cel.NullableType(cel.IntType)
	case value.Decimal:
		return cel.NullableType(cel.DoubleType)
	case value.Boolean:
		return cel.NullableType(cel.BoolType)
	case value.Binary:
		return cel.NullableType(cel.BytesType)
	}
	return cel.DynType
}

// toCEL binds sequences as lists and nulls, elements included, as null.
func toCEL(v value.Value) (any, error) {
	if v.IsNull() {
		return types.NullValue, nil
	}
	if !v.IsSequence() {
		return scalarToCEL(v)
	}

	elems, err := v.AsSequence()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		if out[i], err = scalarToCEL(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scalarToCEL(v value.Value) (any, error) {
	n, err := v.Native()
	if err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case nil:
		return types.NullValue, nil
	case language.Tag:
		return n.String(), nil
	}
	return n, nil
}

// fromCEL converts an expression result into a value of the variable. Repeatable
// variables expect a list.
func fromCEL(out ref.Val, v *variable.Variable) (value.Value, error) {
	if out == types.NullValue {
		return v.NullValue(), nil
	}
	if !v.IsRepeatable() {
		n, err := native(out)
		if err != nil {
			return value.Value{}, err
		}
		return v.ValueType().ValueOf(n)
	}

	list, ok := out.(traits.Lister)
	if !ok {
		return value.Value{}, fmt.Errorf("expected a list result, but got '%s'", out.Type().TypeName())
	}
	var elems []any
	for it := list.Iterator(); it.HasNext() == types.True; {
		n, err := native(it.Next())
		if err != nil {
			return value.Value{}, err
		}
		elems = append(elems, n)
	}
	return v.ValueType().Sequence(elems...)
}

func native(val ref.Val) (any, error) {
	switch val := val.(type) {
	case types.Null:
		return nil, nil
	case types.Bool, types.Int, types.Uint, types.Double, types.String, types.Bytes, types.Timestamp:
		return val.Value(), nil
	}
	return nil, fmt.Errorf("unsupported result type '%s'", val.Type().TypeName())
}
