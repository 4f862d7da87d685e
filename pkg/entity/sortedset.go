package entity

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// SortedSet stores a set (no duplicates allowed) of entities in memory
// in a way that also provides fast sorted access.
type SortedSet interface {
	Size() int
	Min() (Entity, bool)
	Max() (Entity, bool)
	Add(e ...Entity)
	Remove(e Entity)
	Exists(e Entity) bool
	Values() []Entity
}

// RedBlackTreeSet is a SortedSet ordered by a comparator, the entity identifier order by default.
type RedBlackTreeSet struct {
	inner *redblacktree.Tree
}

var _ SortedSet = (*RedBlackTreeSet)(nil)

// NewSortedSet returns a set ordered with Compare.
func NewSortedSet(entities ...Entity) *RedBlackTreeSet {
	return NewSortedSetWithComparator(Compare, entities...)
}

// NewSortedSetWithComparator returns a set ordered with compare.
func NewSortedSetWithComparator(compare func(a, b Entity) int, entities ...Entity) *RedBlackTreeSet {
	var comparator utils.Comparator = func(a, b interface{}) int {
		return compare(a.(Entity), b.(Entity))
	}
	s := &RedBlackTreeSet{
		inner: redblacktree.NewWith(comparator),
	}
	s.Add(entities...)
	return s
}

func (r *RedBlackTreeSet) Min() (Entity, bool) {
	node := r.inner.Left()
	if node == nil {
		return Entity{}, false
	}
	return node.Key.(Entity), true
}

func (r *RedBlackTreeSet) Max() (Entity, bool) {
	node := r.inner.Right()
	if node == nil {
		return Entity{}, false
	}
	return node.Key.(Entity), true
}

func (r *RedBlackTreeSet) Add(entities ...Entity) {
	for _, e := range entities {
		r.inner.Put(e, nil)
	}
}

func (r *RedBlackTreeSet) Remove(e Entity) {
	r.inner.Remove(e)
}

func (r *RedBlackTreeSet) Exists(e Entity) bool {
	_, ok := r.inner.Get(e)
	return ok
}

func (r *RedBlackTreeSet) Size() int {
	return r.inner.Size()
}

// Values returns the entities in ascending order.
func (r *RedBlackTreeSet) Values() []Entity {
	values := make([]Entity, 0, r.inner.Size())
	for _, k := range r.inner.Keys() {
		values = append(values, k.(Entity))
	}
	return values
}
