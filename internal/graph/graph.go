// Package graph is a directed graph over keyed vertices with cycle
// detection.
package graph

import (
	"errors"
	"fmt"

	"github.com/zboralski/lattice"
)

// ErrMissingVertex is returned when an edge names a vertex that was never
// added.
var ErrMissingVertex = errors.New("graph: missing vertex")

// Keyed is implemented by vertex values; the key identifies the vertex.
type Keyed[K comparable] interface {
	Key() K
}

// Graph is a directed graph. Vertices and edges keep insertion order.
// The zero value is not usable; call New.
type Graph[K comparable, V Keyed[K]] struct {
	order    []K
	vertices map[K]V
	adj      map[K][]K
	edgeSet  map[[2]K]struct{}
}

// New returns an empty graph.
func New[K comparable, V Keyed[K]]() *Graph[K, V] {
	return &Graph[K, V]{
		vertices: make(map[K]V),
		adj:      make(map[K][]K),
		edgeSet:  make(map[[2]K]struct{}),
	}
}

// AddVertex adds v and reports whether it was new. Adding a vertex whose
// key is already present keeps the first value.
func (g *Graph[K, V]) AddVertex(v V) bool {
	k := v.Key()
	if _, ok := g.vertices[k]; ok {
		return false
	}
	g.vertices[k] = v
	g.order = append(g.order, k)
	return true
}

// Contains reports whether a vertex with v's key is present.
func (g *Graph[K, V]) Contains(v V) bool { return g.ContainsKey(v.Key()) }

// ContainsKey reports whether k is a vertex.
func (g *Graph[K, V]) ContainsKey(k K) bool {
	_, ok := g.vertices[k]
	return ok
}

// Vertex returns the vertex with key k.
func (g *Graph[K, V]) Vertex(k K) (V, bool) {
	v, ok := g.vertices[k]
	return v, ok
}

// AddEdge adds from -> to and reports whether it was new. Both endpoints
// must already be vertices.
func (g *Graph[K, V]) AddEdge(from, to K) (bool, error) {
	if !g.ContainsKey(from) {
		return false, fmt.Errorf("%w: edge source %v", ErrMissingVertex, from)
	}
	if !g.ContainsKey(to) {
		return false, fmt.Errorf("%w: edge target %v", ErrMissingVertex, to)
	}
	e := [2]K{from, to}
	if _, ok := g.edgeSet[e]; ok {
		return false, nil
	}
	g.edgeSet[e] = struct{}{}
	g.adj[from] = append(g.adj[from], to)
	return true, nil
}

// HasEdge reports whether from -> to exists.
func (g *Graph[K, V]) HasEdge(from, to K) bool {
	_, ok := g.edgeSet[[2]K{from, to}]
	return ok
}

// Vertices returns a snapshot of all vertices in insertion order.
func (g *Graph[K, V]) Vertices() []V {
	out := make([]V, len(g.order))
	for i, k := range g.order {
		out[i] = g.vertices[k]
	}
	return out
}

// Keys returns a snapshot of all vertex keys in insertion order.
func (g *Graph[K, V]) Keys() []K {
	return append([]K(nil), g.order...)
}

// Edges returns a snapshot of the successors of k.
func (g *Graph[K, V]) Edges(k K) []K {
	return append([]K(nil), g.adj[k]...)
}

func (g *Graph[K, V]) VertexCount() int { return len(g.order) }
func (g *Graph[K, V]) EdgeCount() int   { return len(g.edgeSet) }

// Lattice converts the graph for rendering. label names each vertex.
func (g *Graph[K, V]) Lattice(label func(K) string) *lattice.Graph {
	lg := &lattice.Graph{}
	for _, k := range g.order {
		lg.Nodes = append(lg.Nodes, label(k))
	}
	for _, from := range g.order {
		for _, to := range g.adj[from] {
			lg.Edges = append(lg.Edges, lattice.Edge{Caller: label(from), Callee: label(to)})
		}
	}
	return lg
}
