package render

import (
	"fmt"
	"sort"
	"strings"

	"cilscope/internal/disasm"
)

// FindEntryPoints returns methods that no resolved call edge targets.
// Constructors are excluded since the runtime reaches them through newobj
// sites outside the analyzed assembly.
func FindEntryPoints(methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord) []string {
	targets := make(map[string]bool)
	for _, e := range edges {
		if e.Resolved && e.Target != "" {
			targets[e.Target] = true
		}
	}

	var entries []string
	for _, m := range methods {
		if strings.HasSuffix(m.Name, "::.cctor") || strings.HasSuffix(m.Name, "::.ctor") {
			continue
		}
		if !targets[m.Name] {
			entries = append(entries, m.Name)
		}
	}
	sort.Strings(entries)
	return entries
}

// ReachableSet performs BFS from entry points following resolved call edges
// and returns the set of all reachable method names.
func ReachableSet(entryPoints []string, edges []disasm.CallEdgeRecord) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.Resolved && e.Target != "" {
			adj[e.FromFunc] = append(adj[e.FromFunc], e.Target)
		}
	}

	reachable := make(map[string]bool)
	queue := make([]string, 0, len(entryPoints))
	for _, ep := range entryPoints {
		if !reachable[ep] {
			reachable[ep] = true
			queue = append(queue, ep)
		}
	}
	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range adj[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// ReachabilityDOT renders a callgraph filtered to the reachable set.
// Entry points are highlighted. Only resolved edges between reachable
// methods are shown.
func ReachabilityDOT(methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord, reachable map[string]bool, entryPoints []string, title string, t Theme) string {
	entrySet := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entrySet[ep] = true
	}

	funcOwner := make(map[string]string, len(methods))
	for _, m := range methods {
		funcOwner[m.Name] = m.Owner
	}

	type edgeKey struct{ from, to string }
	edgeCount := make(map[edgeKey]int)
	var edgeOrder []edgeKey
	for _, e := range edges {
		if !e.Resolved || e.Target == "" {
			continue
		}
		if !reachable[e.FromFunc] || !reachable[e.Target] {
			continue
		}
		k := edgeKey{e.FromFunc, e.Target}
		if edgeCount[k] == 0 {
			edgeOrder = append(edgeOrder, k)
		}
		edgeCount[k]++
	}

	refNodes := make(map[string]bool)
	for _, k := range edgeOrder {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}
	for _, ep := range entryPoints {
		refNodes[ep] = true
	}

	ownerFuncs := make(map[string][]string)
	var noOwner []string
	for name := range refNodes {
		owner, ok := funcOwner[name]
		if !ok {
			owner = ownerOf(name)
		}
		if owner != "" {
			ownerFuncs[owner] = append(ownerFuncs[owner], name)
		} else {
			noOwner = append(noOwner, name)
		}
	}
	owners := make([]string, 0, len(ownerFuncs))
	for owner := range ownerFuncs {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var b strings.Builder
	writeHeader(&b, "reachable", "LR", t, title)

	writeNode := func(name string) {
		id := dotID(name)
		label := truncLabel(name, 50)
		if entrySet[name] {
			fmt.Fprintf(&b, "    %s [label=%q, penwidth=1.5, color=%q];\n", id, label, t.EntryBorder)
		} else {
			fmt.Fprintf(&b, "    %s [label=%q];\n", id, label)
		}
	}

	for _, owner := range owners {
		names := ownerFuncs[owner]
		if len(names) < 2 {
			noOwner = append(noOwner, names...)
			continue
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(owner))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.ClusterLabel, dotEscape(owner))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, name := range names {
			writeNode(name)
		}
		b.WriteString("  }\n")
	}
	sort.Strings(noOwner)
	for _, name := range noOwner {
		b.WriteString("  ")
		writeNode(name)
	}
	b.WriteByte('\n')

	for _, k := range edgeOrder {
		attrs := fmt.Sprintf("color=%q", t.EdgeCall)
		if count := edgeCount[k]; count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
