package output

import (
	"path/filepath"

	"cilscope/internal/depgraph"
	"cilscope/internal/metadata"
)

// GraphDoc is the flattened form of a depgraph.Result written to graph.json.
type GraphDoc struct {
	Root           string                `json:"root"`
	Assemblies     []AssemblyNode        `json:"assemblies"`
	Classes        []TypeNode            `json:"classes"`
	Interfaces     []TypeNode            `json:"interfaces"`
	AssemblyEdges  []Edge                `json:"assembly_edges"`
	ClassEdges     []Edge                `json:"class_edges"`
	InterfaceEdges []Edge                `json:"interface_edges"`
	Cycles         []depgraph.Cycle      `json:"cycles"`
	Dependencies   []depgraph.Dependency `json:"dependencies"`
}

// AssemblyNode is one assembly vertex.
type AssemblyNode struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Loaded   bool   `json:"loaded"`
	Excluded bool   `json:"excluded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TypeNode is one class or interface vertex.
type TypeNode struct {
	Key       string   `json:"key"`
	Assembly  string   `json:"assembly"`
	Namespace string   `json:"namespace,omitempty"`
	Name      string   `json:"name"`
	Public    bool     `json:"public"`
	Members   []string `json:"members,omitempty"`
}

// Edge is a directed edge between vertex keys.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewGraphDoc flattens r. Slices are never nil so the JSON always carries
// every key.
func NewGraphDoc(r *depgraph.Result) GraphDoc {
	doc := GraphDoc{
		Root:           r.Root,
		Assemblies:     []AssemblyNode{},
		Classes:        []TypeNode{},
		Interfaces:     []TypeNode{},
		AssemblyEdges:  []Edge{},
		ClassEdges:     []Edge{},
		InterfaceEdges: []Edge{},
		Cycles:         []depgraph.Cycle{},
		Dependencies:   []depgraph.Dependency{},
	}
	for _, v := range r.Assemblies.Vertices() {
		n := AssemblyNode{Name: v.Name(), Loaded: v.IsLoaded(), Excluded: v.Excluded}
		if v.Ref.Version != (metadata.Version{}) {
			n.Version = v.Ref.Version.String()
		}
		if v.LoadErr != nil {
			n.Error = v.LoadErr.Error()
		}
		doc.Assemblies = append(doc.Assemblies, n)
		for _, to := range r.Assemblies.Edges(v.Key()) {
			doc.AssemblyEdges = append(doc.AssemblyEdges, Edge{v.Key(), to})
		}
	}
	for _, v := range r.Classes.Vertices() {
		n := typeNode(v.Key(), v.Assembly, v.Def)
		for _, m := range v.Members() {
			n.Members = append(n.Members, m.Name)
		}
		doc.Classes = append(doc.Classes, n)
		for _, to := range r.Classes.Edges(v.Key()) {
			doc.ClassEdges = append(doc.ClassEdges, Edge{v.Key(), to})
		}
	}
	for _, v := range r.Interfaces.Vertices() {
		doc.Interfaces = append(doc.Interfaces, typeNode(v.Key(), v.Assembly, v.Def))
		for _, to := range r.Interfaces.Edges(v.Key()) {
			doc.InterfaceEdges = append(doc.InterfaceEdges, Edge{v.Key(), to})
		}
	}
	doc.Cycles = append(doc.Cycles, r.Cycles()...)
	doc.Dependencies = append(doc.Dependencies, r.TypeDependencies()...)
	return doc
}

func typeNode(key, asm string, d *metadata.TypeDef) TypeNode {
	return TypeNode{
		Key:       key,
		Assembly:  asm,
		Namespace: d.Namespace(),
		Name:      d.Name(),
		Public:    d.IsPublic(),
	}
}

// WriteGraphJSON writes the flattened graphs to graph.json and returns the
// document.
func WriteGraphJSON(dir string, r *depgraph.Result) (GraphDoc, error) {
	doc := NewGraphDoc(r)
	return doc, writeJSON(filepath.Join(dir, "graph.json"), doc)
}
