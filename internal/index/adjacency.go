// Package index holds the derived in-memory caches used by repositories: an
// entity arena keyed by id and one-to-many adjacency lists between ids.
//
// Nothing in this package locks. The owning repository serializes access.
package index

import (
	"slices"
	"sort"
)

// Adjacency maps a parent id to the ordered ids of its children.
// Unknown parents have no children; lookups never fail.
type Adjacency struct {
	edges map[string][]string
}

// NewAdjacency creates an empty adjacency index.
func NewAdjacency() *Adjacency {
	return &Adjacency{edges: make(map[string][]string)}
}

// Link appends child under parent. Linking an existing pair is a no-op.
func (a *Adjacency) Link(parent, child string) {
	if parent == "" || child == "" {
		return
	}
	if slices.Contains(a.edges[parent], child) {
		return
	}
	a.edges[parent] = append(a.edges[parent], child)
}

// Unlink removes child from parent. Parents left without children are dropped.
func (a *Adjacency) Unlink(parent, child string) {
	children, ok := a.edges[parent]
	if !ok {
		return
	}
	i := slices.Index(children, child)
	if i < 0 {
		return
	}
	children = slices.Delete(children, i, i+1)
	if len(children) == 0 {
		delete(a.edges, parent)
		return
	}
	a.edges[parent] = children
}

// Move re-parents child from oldParent to newParent, touching only those two
// entries. Either parent may be empty, meaning "no parent".
func (a *Adjacency) Move(child, oldParent, newParent string) {
	if oldParent == newParent {
		return
	}
	if oldParent != "" {
		a.Unlink(oldParent, child)
	}
	if newParent != "" {
		a.Link(newParent, child)
	}
}

// Children returns a copy of parent's children, or an empty slice.
func (a *Adjacency) Children(parent string) []string {
	children := a.edges[parent]
	out := make([]string, len(children))
	copy(out, children)
	return out
}

// Has reports whether child is linked under parent.
func (a *Adjacency) Has(parent, child string) bool {
	return slices.Contains(a.edges[parent], child)
}

// RemoveParent drops parent and all of its links.
func (a *Adjacency) RemoveParent(parent string) {
	delete(a.edges, parent)
}

// RemoveChild unlinks child from every parent.
func (a *Adjacency) RemoveChild(child string) {
	for parent := range a.edges {
		a.Unlink(parent, child)
	}
}

// Parents returns the sorted ids that currently have children.
func (a *Adjacency) Parents() []string {
	out := make([]string, 0, len(a.edges))
	for p := range a.edges {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset clears every link.
func (a *Adjacency) Reset() {
	a.edges = make(map[string][]string)
}

// Len returns the number of parents with at least one child.
func (a *Adjacency) Len() int {
	return len(a.edges)
}
