package render

import (
	"fmt"
	"strings"

	"github.com/zboralski/lattice"

	"cilscope/internal/depgraph"
)

// GraphStyle customizes GraphDOT.
type GraphStyle struct {
	Muted map[string]bool // drawn as stubs with external text
	Cycle []string        // path with the first vertex repeated; highlighted
}

// GraphDOT renders a plain directed graph. Nodes and edges keep the order of
// g; edges on st.Cycle are drawn bold in the cycle color.
func GraphDOT(g *lattice.Graph, name, title string, t Theme, st GraphStyle) string {
	onCycle := make(map[string]bool, len(st.Cycle))
	cycleEdge := make(map[[2]string]bool, len(st.Cycle))
	for i, k := range st.Cycle {
		onCycle[k] = true
		if i > 0 {
			cycleEdge[[2]string{st.Cycle[i-1], k}] = true
		}
	}

	var b strings.Builder
	writeHeader(&b, name, "BT", t, title)

	for _, n := range g.Nodes {
		attrs := fmt.Sprintf("label=%q", truncLabel(n, 60))
		if st.Muted[n] {
			attrs += fmt.Sprintf(", fillcolor=%q, fontcolor=%q", t.StubFill, t.ExternalText)
		}
		if onCycle[n] {
			attrs += fmt.Sprintf(", penwidth=1.5, color=%q", t.CycleColor)
		}
		fmt.Fprintf(&b, "  %s [%s];\n", dotID(n), attrs)
	}
	b.WriteByte('\n')

	for _, e := range g.Edges {
		if cycleEdge[[2]string{e.Caller, e.Callee}] {
			fmt.Fprintf(&b, "  %s -> %s [color=%q, penwidth=1.5];\n", dotID(e.Caller), dotID(e.Callee), t.CycleColor)
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s;\n", dotID(e.Caller), dotID(e.Callee))
	}

	b.WriteString("}\n")
	return b.String()
}

// DependencyDOT renders one of the builder's graphs (depgraph.GraphAssemblies,
// GraphClasses or GraphInterfaces). Unloaded and excluded assemblies are
// muted; the reported cycle of that graph, if any, is highlighted.
func DependencyDOT(r *depgraph.Result, graph string, t Theme) string {
	g := r.Lattice(graph)
	if g == nil {
		return ""
	}
	st := GraphStyle{Muted: make(map[string]bool)}
	if graph == depgraph.GraphAssemblies {
		for _, v := range r.Assemblies.Vertices() {
			if !v.IsLoaded() {
				st.Muted[v.Key()] = true
			}
		}
	}
	for _, c := range r.Cycles() {
		if c.Graph == graph {
			st.Cycle = c.Path
		}
	}
	return GraphDOT(g, graph, r.Root+" "+graph, t, st)
}
