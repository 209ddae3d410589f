// Package callgraph converts decoded method bodies into lattice call graphs
// and control flow graphs.
package callgraph

import (
	"github.com/zboralski/lattice"

	"cilscope/internal/disasm"
	"cilscope/internal/metadata"
)

// FuncInfo holds the data needed to build call graph and CFG for one method.
type FuncInfo struct {
	Name      string
	IL        *disasm.MethodIL
	CallEdges []disasm.CallEdge
	Clauses   []metadata.ExceptionClause
	Strings   bool // show ldstr literals in CFG blocks
}

// BuildCallGraph constructs a lattice.Graph from decoded methods.
// Each method becomes a node. Each resolved call edge becomes an edge;
// unresolved tokens are skipped.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			if !e.Resolved || e.Target == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: e.Target,
			})
		}
	}
	g.Dedup()
	return g
}
