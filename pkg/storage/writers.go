package storage

import (
	"fmt"

	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// CheckValue validates a value written for v into table: the variable must belong to
// the table and the value must match its type and repeatability. Null values always
// pass; they remove the stored value.
func CheckValue(table ValueTable, v *variable.Variable, val value.Value) error {
	if !table.HasVariable(v.Name()) {
		return NoSuchVariableError(table.Name(), v.Name())
	}
	if val.Type() == nil || val.IsNull() {
		return nil
	}
	if val.Type() != v.ValueType() {
		return fmt.Errorf("value of type '%s' written to variable '%s' of type '%s': %w",
			val.Type().Name(), v.Name(), v.ValueType().Name(), ErrInvalidArgument)
	}
	if val.IsSequence() != v.IsRepeatable() {
		return fmt.Errorf("sequence value mismatch for variable '%s' (repeatable=%t): %w",
			v.Name(), v.IsRepeatable(), ErrInvalidArgument)
	}
	return nil
}
