package depgraph

import (
	"github.com/zboralski/lattice"

	"cilscope/internal/graph"
)

// Result holds the three graphs produced by Build. It is read-only once
// returned.
type Result struct {
	Root       string
	Assemblies *graph.Graph[string, *AssemblyVertex]
	Classes    *graph.Graph[string, *ClassVertex]
	Interfaces *graph.Graph[string, *InterfaceVertex]
}

// Graph names used in cycle reports.
const (
	GraphAssemblies = "assemblies"
	GraphClasses    = "classes"
	GraphInterfaces = "interfaces"
)

// Cycle is one cycle found in a graph. Path starts and ends on the same key.
type Cycle struct {
	Graph string   `json:"graph"`
	Path  []string `json:"path"`
}

// Cycles checks all three graphs and returns one cycle per cyclic graph.
func (r *Result) Cycles() []Cycle {
	var out []Cycle
	if p := r.Assemblies.FindCycle(); p != nil {
		out = append(out, Cycle{Graph: GraphAssemblies, Path: p})
	}
	if p := r.Classes.FindCycle(); p != nil {
		out = append(out, Cycle{Graph: GraphClasses, Path: p})
	}
	if p := r.Interfaces.FindCycle(); p != nil {
		out = append(out, Cycle{Graph: GraphInterfaces, Path: p})
	}
	return out
}

// LoadedAssemblies returns the assembly vertices with a handle, in discovery
// order.
func (r *Result) LoadedAssemblies() []*AssemblyVertex {
	var out []*AssemblyVertex
	for _, v := range r.Assemblies.Vertices() {
		if v.IsLoaded() {
			out = append(out, v)
		}
	}
	return out
}

// Dependency pairs a class with one type its public surface depends on.
type Dependency struct {
	Class  string `json:"class"`
	Member string `json:"member"`
	Type   string `json:"type"`
}

// TypeDependencies lists every (class, member, type) pair from the class
// descriptors, skipping self references.
func (r *Result) TypeDependencies() []Dependency {
	var out []Dependency
	for _, cv := range r.Classes.Vertices() {
		for _, m := range cv.Members() {
			for _, k := range m.Dependencies {
				if k == cv.Key() {
					continue
				}
				out = append(out, Dependency{Class: cv.Key(), Member: m.Name, Type: k})
			}
		}
	}
	return out
}

// Lattice converts one of the graphs to a lattice graph for rendering.
func (r *Result) Lattice(name string) *lattice.Graph {
	id := func(k string) string { return k }
	switch name {
	case GraphAssemblies:
		return r.Assemblies.Lattice(id)
	case GraphClasses:
		return r.Classes.Lattice(id)
	case GraphInterfaces:
		return r.Interfaces.Lattice(id)
	}
	return nil
}
