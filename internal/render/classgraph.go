package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"cilscope/internal/disasm"
)

// ClassgraphDOT renders a type-level callgraph where each declaring type is
// one node and edges aggregate inter-type calls. Resolved targets outside
// the method set contribute their declaring type as a node. maxNodes limits
// rendered types (0 = all). Methods without an owner are grouped under
// "(global)".
func ClassgraphDOT(methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	const global = "(global)"

	funcOwner := make(map[string]string, len(methods))
	ownerMethodCount := make(map[string]int)
	for _, m := range methods {
		owner := m.Owner
		if owner == "" {
			owner = global
		}
		funcOwner[m.Name] = owner
		ownerMethodCount[owner]++
	}

	type classEdge struct {
		from, to string
	}
	classCounts := make(map[classEdge]int)
	for _, e := range edges {
		if !e.Resolved || e.Target == "" {
			continue
		}
		src := funcOwner[e.FromFunc]
		if src == "" {
			src = global
		}
		dst, ok := funcOwner[e.Target]
		if !ok {
			dst = ownerOf(e.Target)
		}
		if dst == "" || src == dst {
			continue
		}
		classCounts[classEdge{src, dst}]++
	}

	involvement := make(map[string]int)
	for ce, count := range classCounts {
		involvement[ce.from] += count
		involvement[ce.to] += count
	}
	ranked := topNMap(involvement, len(involvement))
	if maxNodes > 0 && len(ranked) > maxNodes {
		ranked = ranked[:maxNodes]
	}
	renderSet := make(map[string]bool, len(ranked))
	for _, rc := range ranked {
		renderSet[rc.Name] = true
	}

	var b strings.Builder
	writeHeader(&b, "classgraph", "LR", t, title)

	maxMethods := 1
	for name := range renderSet {
		if c := ownerMethodCount[name]; c > maxMethods {
			maxMethods = c
		}
	}
	for _, rc := range ranked {
		name := rc.Name
		methods := ownerMethodCount[name]
		height := 0.4 + 0.3*math.Log2(float64(methods)+1)/math.Log2(float64(maxMethods)+1)
		htmlLabel := fmt.Sprintf("<<font point-size=\"10\">%s</font><br/><font point-size=\"7\" color=\"%s\">%d methods</font>>",
			dotEscape(name), t.ExternalText, methods)
		switch {
		case methods == 0:
			fmt.Fprintf(&b, "  %s [label=%s, style=\"rounded\", fontcolor=%q, height=%.2f];\n",
				dotID(name), htmlLabel, t.ExternalText, height)
		case name == global:
			fmt.Fprintf(&b, "  %s [label=%s, fillcolor=%q, height=%.2f];\n",
				dotID(name), htmlLabel, t.StubFill, height)
		default:
			fmt.Fprintf(&b, "  %s [label=%s, style=\"filled,rounded\", height=%.2f];\n",
				dotID(name), htmlLabel, height)
		}
	}
	b.WriteByte('\n')

	var rendered []classEdge
	maxEdgeCount := 1
	for ce, c := range classCounts {
		if !renderSet[ce.from] || !renderSet[ce.to] {
			continue
		}
		rendered = append(rendered, ce)
		if c > maxEdgeCount {
			maxEdgeCount = c
		}
	}
	sort.Slice(rendered, func(i, j int) bool {
		if rendered[i].from != rendered[j].from {
			return rendered[i].from < rendered[j].from
		}
		return rendered[i].to < rendered[j].to
	})
	for _, ce := range rendered {
		count := classCounts[ce]
		pw := 0.5 + 2.0*math.Log2(float64(count)+1)/math.Log2(float64(maxEdgeCount)+1)
		attrs := fmt.Sprintf("penwidth=%.1f", pw)
		if count > 1 {
			attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%d</font>>",
				t.ExternalText, count)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(ce.from), dotID(ce.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
