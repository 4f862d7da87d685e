// Package vector implements the merge of a requested, ordered entity sequence against
// one ordered backend cursor.
package vector

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
)

// Row is one entry of a backend cursor: the identifier of an entity and its value.
type Row struct {
	Identifier string
	Value      value.Value
}

// Cursor yields rows ordered by identifier. Stop releases the backend resources.
type Cursor = storage.Iterator[Row]

// OpenFunc opens the backend cursor. It is called at most once, on the first pull.
type OpenFunc func(ctx context.Context) (Cursor, error)

// Option customises a stream.
type Option func(*stream)

// WithCompare sets the identifier order shared by the request and the cursor.
// The default is strings.Compare.
func WithCompare(compare func(a, b string) int) Option {
	return func(s *stream) {
		s.compare = compare
	}
}

// WithOnRelease registers a callback invoked once when the cursor is released.
func WithOnRelease(fn func()) Option {
	return func(s *stream) {
		s.onRelease = fn
	}
}

type stream struct {
	entities  []entity.Entity
	null      value.Value
	open      OpenFunc
	compare   func(a, b string) int
	onRelease func()

	mu       sync.Mutex
	pos      int
	cursor   Cursor
	opened   bool
	released bool
	row      Row
	hasRow   bool
	err      error
}

// Stream returns an iterator with exactly one value per entity, in the order of
// entities. Entities missing from the cursor yield null. The cursor is opened lazily,
// read once, and released as soon as either side is exhausted, on error, or on Stop.
func Stream(entities []entity.Entity, null value.Value, open OpenFunc, opts ...Option) storage.ValueIterator {
	s := &stream{
		entities: entities,
		null:     null,
		open:     open,
		compare:  strings.Compare,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *stream) Next(ctx context.Context) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return value.Value{}, s.err
	}
	if s.pos >= len(s.entities) {
		s.release()
		return value.Value{}, storage.ErrIteratorDone
	}
	if err := ctx.Err(); err != nil {
		s.fail(err)
		return value.Value{}, err
	}

	if !s.opened {
		s.opened = true
		cursor, err := s.open(ctx)
		if err != nil {
			s.fail(err)
			return value.Value{}, err
		}
		s.cursor = cursor
	}

	target := s.entities[s.pos].Identifier
	for !s.released {
		if !s.hasRow {
			row, err := s.cursor.Next(ctx)
			if err != nil {
				if errors.Is(err, storage.ErrIteratorDone) {
					s.release()
					break
				}
				s.fail(err)
				return value.Value{}, err
			}
			s.row, s.hasRow = row, true
		}

		c := s.compare(s.row.Identifier, target)
		if c < 0 {
			// the cursor is behind the request
			s.hasRow = false
			continue
		}
		if c == 0 {
			// the row is kept until the request moves past it so that repeated
			// entities in the request resolve to the same row
			return s.emit(s.row.Value), nil
		}
		break
	}
	return s.emit(s.null), nil
}

func (s *stream) emit(v value.Value) value.Value {
	s.pos++
	if s.pos >= len(s.entities) {
		s.release()
	}
	if v.Type() == nil || v.IsNull() {
		return s.null
	}
	return v
}

func (s *stream) fail(err error) {
	s.err = err
	s.release()
}

// release stops the cursor exactly once. It also marks the cursor side as exhausted so
// that remaining entities are null filled.
func (s *stream) release() {
	if s.released {
		return
	}
	s.released = true
	s.hasRow = false
	if s.cursor != nil {
		s.cursor.Stop()
		if s.onRelease != nil {
			s.onRelease()
		}
	}
}

// Stop releases the cursor. Subsequent calls to Next return ErrIteratorDone.
func (s *stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = len(s.entities)
	s.release()
}

type lazy struct {
	entities []entity.Entity
	read     func(ctx context.Context, e entity.Entity) (value.Value, error)
	pos      int
}

// PerEntity returns an iterator reading one value per entity with read. It is the
// fallback for sources whose backend has no ordered cursor.
func PerEntity(entities []entity.Entity, read func(ctx context.Context, e entity.Entity) (value.Value, error)) storage.ValueIterator {
	return &lazy{entities: entities, read: read}
}

func (l *lazy) Next(ctx context.Context) (value.Value, error) {
	if l.pos >= len(l.entities) {
		return value.Value{}, storage.ErrIteratorDone
	}
	if err := ctx.Err(); err != nil {
		return value.Value{}, err
	}
	e := l.entities[l.pos]
	l.pos++
	return l.read(ctx, e)
}

func (l *lazy) Stop() {
	l.pos = len(l.entities)
}
