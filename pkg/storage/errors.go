package storage

import (
	"errors"
	"fmt"

	"github.com/datavirt/datavirt/pkg/entity"
)

var (
	// Lookup errors

	// ErrNoSuchDatasource if no datasource is registered under the requested name.
	ErrNoSuchDatasource = errors.New("no such datasource")
	// ErrNoSuchValueTable if the datasource has no table with the requested name.
	ErrNoSuchValueTable = errors.New("no such value table")
	// ErrNoSuchVariable if the table has no variable with the requested name.
	ErrNoSuchVariable = errors.New("no such variable")
	// ErrNoSuchValueSet if the entity cannot have a value set in the table.
	ErrNoSuchValueSet = errors.New("no such value set")

	// Write errors

	// ErrCollision if an item already exists within the datasource.
	ErrCollision = errors.New("item already exists")
	// ErrInvalidArgument if a write does not fit the table it targets (e.g. wrong entity type).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported if the backend does not implement the requested capability.
	ErrUnsupported = errors.New("operation not supported")

	// Shared errors

	// ErrRuntime is an unrecoverable backend or integrity failure, including mutations
	// of visible objects the caller is not permitted to modify.
	ErrRuntime = errors.New("runtime error")
	// ErrNotFound is returned by backends for a missing row; datasource implementations
	// translate it into one of the lookup errors above.
	ErrNotFound = errors.New("not found")
)

func NoSuchDatasourceError(name string) error {
	return fmt.Errorf("datasource '%s': %w", name, ErrNoSuchDatasource)
}

func NoSuchValueTableError(datasource, table string) error {
	return fmt.Errorf("value table '%s' in datasource '%s': %w", table, datasource, ErrNoSuchValueTable)
}

func NoSuchVariableError(table, variable string) error {
	return fmt.Errorf("variable '%s' in value table '%s': %w", variable, table, ErrNoSuchVariable)
}

func NoSuchValueSetError(table string, e entity.Entity) error {
	return fmt.Errorf("value set of '%s' in value table '%s': %w", e, table, ErrNoSuchValueSet)
}

func RuntimeError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrRuntime)
}

func EntityTypeMismatchError(table, expected, actual string) error {
	return fmt.Errorf("value table '%s' holds entities of type '%s', not '%s': %w", table, expected, actual, ErrInvalidArgument)
}
