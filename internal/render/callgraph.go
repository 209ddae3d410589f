package render

import (
	"fmt"
	"sort"
	"strings"

	"cilscope/internal/disasm"
)

// Call categories derived from CallEdgeRecord.Kind and Resolved.
const (
	ProvCall       = "call"
	ProvVirtual    = "callvirt"
	ProvNewobj     = "newobj"
	ProvFnPtr      = "fnptr"
	ProvIndirect   = "calli"
	ProvUnresolved = "unresolved"
)

// ClassifyEdgeProv returns the category of a call edge.
func ClassifyEdgeProv(e disasm.CallEdgeRecord) string {
	if !e.Resolved {
		return ProvUnresolved
	}
	switch e.Kind {
	case "callvirt":
		return ProvVirtual
	case "newobj":
		return ProvNewobj
	case "ldftn", "ldvirtftn":
		return ProvFnPtr
	case "calli":
		return ProvIndirect
	default:
		return ProvCall
	}
}

// edgeColor returns the DOT color for an edge category.
func edgeColor(prov string, t Theme) string {
	switch prov {
	case ProvVirtual:
		return t.EdgeVirtual
	case ProvNewobj:
		return t.EdgeNewobj
	case ProvFnPtr:
		return t.EdgeFnPtr
	case ProvIndirect:
		return t.EdgeIndirect
	case ProvUnresolved:
		return t.EdgeUnresolved
	default:
		return t.EdgeCall
	}
}

// edgeStyle returns dot style attributes for a category.
func edgeStyle(prov string) string {
	switch prov {
	case ProvFnPtr, ProvIndirect:
		return "dotted"
	case ProvUnresolved:
		return "dashed"
	default:
		return "solid"
	}
}

type callKey struct {
	from, to, prov string
}

// dedupCalls groups edges by caller, target and category. Unresolved edges
// are keyed by their raw token.
func dedupCalls(edges []disasm.CallEdgeRecord) (map[callKey]int, []callKey) {
	counts := make(map[callKey]int)
	var order []callKey
	for _, e := range edges {
		target := e.Target
		if target == "" {
			target = e.Token
		}
		if target == "" {
			continue
		}
		k := callKey{e.FromFunc, target, ClassifyEdgeProv(e)}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	return counts, order
}

// CallgraphDOT renders a callgraph from methods and call edges as DOT.
// Methods are clustered by declaring type. Targets outside the method set
// (other assemblies, unresolved tokens) are shown as plaintext nodes.
// maxNodes limits the number of method nodes rendered (0 = all).
func CallgraphDOT(methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	counts, order := dedupCalls(edges)

	refNodes := make(map[string]bool)
	for _, k := range order {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}

	var renderFuncs []disasm.MethodRecord
	for _, m := range methods {
		if refNodes[m.Name] {
			renderFuncs = append(renderFuncs, m)
		}
	}
	if maxNodes > 0 && len(renderFuncs) > maxNodes {
		renderFuncs = renderFuncs[:maxNodes]
	}
	funcSet := make(map[string]bool, len(renderFuncs))
	for _, m := range renderFuncs {
		funcSet[m.Name] = true
	}

	var external []string
	externalSet := make(map[string]bool)
	for _, k := range order {
		if funcSet[k.from] && !funcSet[k.to] && !externalSet[k.to] {
			externalSet[k.to] = true
			external = append(external, k.to)
		}
	}

	var owners []string
	ownerFuncs := make(map[string][]disasm.MethodRecord)
	var noOwner []disasm.MethodRecord
	for _, m := range renderFuncs {
		if m.Owner == "" {
			noOwner = append(noOwner, m)
			continue
		}
		if _, ok := ownerFuncs[m.Owner]; !ok {
			owners = append(owners, m.Owner)
		}
		ownerFuncs[m.Owner] = append(ownerFuncs[m.Owner], m)
	}

	var b strings.Builder
	writeHeader(&b, "callgraph", "LR", t, title)

	for _, owner := range owners {
		inOwner := ownerFuncs[owner]
		if len(inOwner) < 2 {
			noOwner = append(noOwner, inOwner...)
			continue
		}
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(owner))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.ClusterLabel, dotEscape(owner))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, m := range inOwner {
			label := truncLabel(stripMethodName(m.Name, owner), 50)
			fmt.Fprintf(&b, "    %s [label=%q];\n", dotID(m.Name), label)
		}
		b.WriteString("  }\n")
	}
	for _, m := range noOwner {
		fmt.Fprintf(&b, "  %s [label=%q];\n", dotID(m.Name), truncLabel(m.Name, 60))
	}
	b.WriteByte('\n')

	for _, name := range external {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	for _, k := range order {
		if !funcSet[k.from] || (!funcSet[k.to] && !externalSet[k.to]) {
			continue
		}
		count := counts[k]
		color := edgeColor(k.prov, t)
		attrs := fmt.Sprintf("color=%q, style=%q", color, edgeStyle(k.prov))
		if count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
			if count > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", color, count)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// CallgraphStats computes summary statistics from edges.
type CallgraphStats struct {
	TotalMethods int
	TotalEdges   int
	Resolved     int
	Unresolved   int
	UniqueOwners int
	ProvCounts   map[string]int
	TopCallers   []NameCount // sorted desc
	TopCallees   []NameCount // sorted desc
	TopOwners    []NameCount // sorted desc by method count
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string
	Count int
}

// ComputeStats computes callgraph statistics from method and edge records.
func ComputeStats(methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord) CallgraphStats {
	stats := CallgraphStats{
		TotalMethods: len(methods),
		TotalEdges:   len(edges),
		ProvCounts:   make(map[string]int),
	}

	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	for _, e := range edges {
		stats.ProvCounts[ClassifyEdgeProv(e)]++
		callerCount[e.FromFunc]++
		if e.Resolved {
			stats.Resolved++
			if e.Target != "" {
				calleeCount[e.Target]++
			}
		} else {
			stats.Unresolved++
		}
	}

	ownerCount := make(map[string]int)
	for _, m := range methods {
		if m.Owner != "" {
			ownerCount[m.Owner]++
		}
	}
	stats.UniqueOwners = len(ownerCount)

	stats.TopCallers = topNMap(callerCount, 20)
	stats.TopCallees = topNMap(calleeCount, 20)
	stats.TopOwners = topNMap(ownerCount, 30)
	return stats
}

// topNMap returns the top N entries from a map, sorted descending by count
// then ascending by name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
