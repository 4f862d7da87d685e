package derived

import (
	"fmt"
)

type CompilationError struct {
	Variable string
	Cause    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile expression of variable '%s': %v", e.Variable, e.Cause)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

type EvaluationError struct {
	Variable string
	Entity   string
	Cause    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate variable '%s' for %s: %v", e.Variable, e.Entity, e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}
