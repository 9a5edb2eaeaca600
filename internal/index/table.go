package index

import (
	"slices"
	"sort"
)

// Cloner is implemented by entities that can deep-copy themselves.
type Cloner[T any] interface {
	Clone() T
}

// Table is an entity arena keyed by id and grouped by owner (a project id).
// Values go in and come out as copies, so callers never alias cached state.
//
// An owner can be present with zero entities; that records "loaded, empty",
// which is different from an owner the table has never seen.
type Table[T Cloner[T]] struct {
	idOf    func(T) string
	ownerOf func(T) string

	rows    map[string]T
	ownerBy map[string]string   // id -> owner
	byOwner map[string][]string // owner -> ids, insertion order
}

// NewTable creates a table using idOf and ownerOf to key entities.
func NewTable[T Cloner[T]](idOf, ownerOf func(T) string) *Table[T] {
	t := &Table[T]{idOf: idOf, ownerOf: ownerOf}
	t.Reset()
	return t
}

// Put inserts or replaces v. Replacing keeps its position within the owner;
// an owner change moves it to the end of the new owner's list.
func (t *Table[T]) Put(v T) {
	id, owner := t.idOf(v), t.ownerOf(v)
	if id == "" {
		return
	}
	if prev, ok := t.ownerBy[id]; ok && prev != owner {
		t.detach(prev, id)
	}
	if _, ok := t.rows[id]; !ok || t.ownerBy[id] != owner {
		t.byOwner[owner] = append(t.byOwner[owner], id)
	}
	t.rows[id] = v.Clone()
	t.ownerBy[id] = owner
}

// Get returns a copy of the entity with id.
func (t *Table[T]) Get(id string) (T, bool) {
	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	return v.Clone(), true
}

// Delete removes id. The owner stays known even if it becomes empty.
func (t *Table[T]) Delete(id string) bool {
	owner, ok := t.ownerBy[id]
	if !ok {
		return false
	}
	t.detach(owner, id)
	delete(t.rows, id)
	delete(t.ownerBy, id)
	return true
}

func (t *Table[T]) detach(owner, id string) {
	ids := t.byOwner[owner]
	if i := slices.Index(ids, id); i >= 0 {
		t.byOwner[owner] = slices.Delete(ids, i, i+1)
	}
}

// HasOwner reports whether owner has been loaded, even with zero entities.
func (t *Table[T]) HasOwner(owner string) bool {
	_, ok := t.byOwner[owner]
	return ok
}

// ByOwner returns copies of owner's entities in insertion order.
func (t *Table[T]) ByOwner(owner string) []T {
	ids := t.byOwner[owner]
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id].Clone())
	}
	return out
}

// IDsByOwner returns owner's entity ids in insertion order.
func (t *Table[T]) IDsByOwner(owner string) []string {
	return slices.Clone(t.byOwner[owner])
}

// Owners returns every known owner, sorted.
func (t *Table[T]) Owners() []string {
	out := make([]string, 0, len(t.byOwner))
	for o := range t.byOwner {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// ReplaceOwner swaps owner's entities for vs. Entities whose owner field
// disagrees are stored under their own owner.
func (t *Table[T]) ReplaceOwner(owner string, vs []T) {
	t.DropOwner(owner)
	t.byOwner[owner] = []string{}
	for _, v := range vs {
		t.Put(v)
	}
}

// DropOwner removes owner and all its entities.
func (t *Table[T]) DropOwner(owner string) {
	for _, id := range t.byOwner[owner] {
		delete(t.rows, id)
		delete(t.ownerBy, id)
	}
	delete(t.byOwner, owner)
}

// All returns copies of every entity, grouped by sorted owner.
func (t *Table[T]) All() []T {
	out := make([]T, 0, len(t.rows))
	for _, owner := range t.Owners() {
		for _, id := range t.byOwner[owner] {
			out = append(out, t.rows[id].Clone())
		}
	}
	return out
}

// OwnerOf returns the owner recorded for id.
func (t *Table[T]) OwnerOf(id string) (string, bool) {
	o, ok := t.ownerBy[id]
	return o, ok
}

// Reset clears the table.
func (t *Table[T]) Reset() {
	t.rows = make(map[string]T)
	t.ownerBy = make(map[string]string)
	t.byOwner = make(map[string][]string)
}

// Len returns the number of entities.
func (t *Table[T]) Len() int {
	return len(t.rows)
}
