package value

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeConversion is matched by every *TypeConversionError.
	ErrTypeConversion = errors.New("type conversion failed")

	// ErrInvalidValueAccess is returned when a scalar accessor is used on a sequence or vice versa.
	ErrInvalidValueAccess = errors.New("invalid value access")

	// ErrIncomparable is returned when comparing two values of different types.
	ErrIncomparable = errors.New("values of different types cannot be compared")

	// ErrUnknownType is returned by ForName when no type is registered under the name.
	ErrUnknownType = errors.New("unknown value type")
)

// TypeConversionError reports an input that cannot be represented by a value type.
type TypeConversionError struct {
	Type  string
	Input any
	Err   error
}

func (e *TypeConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %#v to %s: %v", e.Input, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot convert %#v to %s", e.Input, e.Type)
}

func (e *TypeConversionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTypeConversion) hold for every conversion error.
func (e *TypeConversionError) Is(target error) bool {
	return target == ErrTypeConversion
}

func conversionError(t *Type, input any, err error) error {
	return &TypeConversionError{Type: t.name, Input: input, Err: err}
}

func invalidAccessError(op string, v Value) error {
	kind := "scalar"
	if v.seq {
		kind = "sequence"
	}
	return fmt.Errorf("%s on %s %s value: %w", op, kind, v.typeName(), ErrInvalidValueAccess)
}
