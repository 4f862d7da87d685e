package storage

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/datavirt/datavirt/pkg/value"
)

var ErrIteratorDone = errors.New("iterator done")

type Iterator[T any] interface {
	// Next will return the next available item. Once the items are exhausted it returns
	// ErrIteratorDone. If the context is cancelled the context error is returned.
	Next(ctx context.Context) (T, error)
	// Stop terminates iteration and releases the underlying resources. It is safe to call
	// Stop more than once and after the iterator is exhausted.
	Stop()
}

// ValueIterator is an iterator of values. It is closed by explicitly calling Stop() or by calling
// Next() until it returns an ErrIteratorDone error.
type ValueIterator = Iterator[value.Value]

// ValueSetIterator is an iterator of value sets.
type ValueSetIterator = Iterator[ValueSet]

type staticIterator[T any] struct {
	items []T
}

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var val T
	if ctx.Err() != nil {
		return val, ctx.Err()
	}
	if len(s.items) == 0 {
		return val, ErrIteratorDone
	}

	next, rest := s.items[0], s.items[1:]
	s.items = rest

	return next, nil
}

func (s *staticIterator[T]) Stop() {
	s.items = nil
}

// NewStaticIterator returns an iterator over the provided items.
func NewStaticIterator[T any](items ...T) Iterator[T] {
	return &staticIterator[T]{items: items}
}

type mappedIterator[S, T any] struct {
	iter Iterator[S]
	fn   func(S) (T, error)
}

func (m *mappedIterator[S, T]) Next(ctx context.Context) (T, error) {
	s, err := m.iter.Next(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return m.fn(s)
}

func (m *mappedIterator[S, T]) Stop() {
	m.iter.Stop()
}

// NewMappedIterator returns an iterator yielding fn applied to every item of iter.
func NewMappedIterator[S, T any](iter Iterator[S], fn func(S) (T, error)) Iterator[T] {
	return &mappedIterator[S, T]{iter: iter, fn: fn}
}

// FilterFunc reports whether an item should be yielded.
type FilterFunc[T any] func(T) bool

type filteredIterator[T any] struct {
	iter   Iterator[T]
	filter FilterFunc[T]
}

// Next returns the next item in the underlying iterator that meets the filter.
func (f *filteredIterator[T]) Next(ctx context.Context) (T, error) {
	for {
		item, err := f.iter.Next(ctx)
		if err != nil {
			return item, err
		}
		if f.filter(item) {
			return item, nil
		}
	}
}

func (f *filteredIterator[T]) Stop() {
	f.iter.Stop()
}

// NewFilteredIterator returns an iterator that filters out all items that don't
// meet the conditions of the provided FilterFunc.
func NewFilteredIterator[T any](iter Iterator[T], filter FilterFunc[T]) Iterator[T] {
	return &filteredIterator[T]{iter: iter, filter: filter}
}

type stopOnceIterator[T any] struct {
	Iterator[T]
	once sync.Once
}

func (s *stopOnceIterator[T]) Stop() {
	s.once.Do(s.Iterator.Stop)
}

// StopOnce guards the Stop of iter so the wrapped Stop runs at most once.
func StopOnce[T any](iter Iterator[T]) Iterator[T] {
	if _, ok := iter.(*stopOnceIterator[T]); ok {
		return iter
	}
	return &stopOnceIterator[T]{Iterator: iter}
}

// All adapts iter to a range-over-func sequence. The iterator is stopped on every exit
// path: exhaustion, error, or break out of the loop. Iteration errors other than
// ErrIteratorDone are yielded once as the final element.
func All[T any](ctx context.Context, it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Stop()
		for {
			item, err := it.Next(ctx)
			if err != nil {
				if !errors.Is(err, ErrIteratorDone) {
					var zero T
					yield(zero, err)
				}
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// ToSlice drains iter and stops it.
func ToSlice[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	var out []T
	for item, err := range All(ctx, it) {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
