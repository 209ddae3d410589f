package render

import (
	"fmt"
	"io"
	"strings"

	"cilscope/internal/disasm"
)

// IndexPage is the input to WriteIndexHTML.
type IndexPage struct {
	Title          string
	Stats          CallgraphStats
	Problems       []disasm.MethodRecord // invalid bodies or unresolved operands
	EntryPoints    []string
	ReachableCount int
	CFGCount       int
	Graphs         []string // DOT files written next to the page
}

// WriteIndexHTML writes a small HTML page summarizing the disasm output.
func WriteIndexHTML(w io.Writer, p IndexPage) {
	stats := p.Stats
	resolvedPct := 0.0
	if stats.TotalEdges > 0 {
		resolvedPct = float64(stats.Resolved) / float64(stats.TotalEdges) * 100
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; color: #1A1A1A; background: #F5F5F5; margin: 2em; max-width: 900px; }
h1 { font-size: 18px; font-weight: 600; margin-bottom: 0.5em; }
h2 { font-size: 14px; font-weight: 600; margin-top: 1.5em; border-bottom: 1px solid #ddd; padding-bottom: 4px; }
table { border-collapse: collapse; margin: 0.5em 0; }
th, td { text-align: left; padding: 3px 12px 3px 0; font-size: 13px; }
th { font-weight: 600; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
.prov { display: inline-block; width: 10px; height: 10px; border-radius: 2px; margin-right: 4px; vertical-align: middle; }
a { color: #0B3D91; }
.bar { height: 8px; border-radius: 2px; display: inline-block; vertical-align: middle; }
.mbar { height: 6px; border-radius: 2px; display: inline-block; vertical-align: middle; background: #0B3D91; }
.ep { font-family: "Courier New", monospace; font-size: 12px; }
</style>
</head>
<body>
`, htmlEscape(p.Title))

	fmt.Fprintf(w, "<h1>%s</h1>\n", htmlEscape(p.Title))

	fmt.Fprintln(w, "<h2>Summary</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintf(w, "<tr><td>Methods</td><td class=\"num\">%d</td></tr>\n", stats.TotalMethods)
	fmt.Fprintf(w, "<tr><td>Declaring types</td><td class=\"num\">%d</td></tr>\n", stats.UniqueOwners)
	fmt.Fprintf(w, "<tr><td>Call sites</td><td class=\"num\">%d</td></tr>\n", stats.TotalEdges)
	fmt.Fprintf(w, "<tr><td>Resolved</td><td class=\"num\">%d (%.1f%%)</td></tr>\n", stats.Resolved, resolvedPct)
	fmt.Fprintf(w, "<tr><td>Unresolved</td><td class=\"num\">%d</td></tr>\n", stats.Unresolved)
	fmt.Fprintf(w, "<tr><td>Entry points</td><td class=\"num\">%d</td></tr>\n", len(p.EntryPoints))
	fmt.Fprintf(w, "<tr><td>Reachable methods</td><td class=\"num\">%d</td></tr>\n", p.ReachableCount)
	fmt.Fprintf(w, "<tr><td>Methods with problems</td><td class=\"num\">%d</td></tr>\n", len(p.Problems))
	if p.CFGCount > 0 {
		fmt.Fprintf(w, "<tr><td>CFGs generated</td><td class=\"num\">%d</td></tr>\n", p.CFGCount)
	}
	fmt.Fprintln(w, "</table>")

	fmt.Fprintln(w, "<h2>Call Sites</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(w, "<tr><th></th><th>Category</th><th>Count</th><th></th></tr>")
	provOrder := []string{ProvCall, ProvVirtual, ProvNewobj, ProvFnPtr, ProvIndirect, ProvUnresolved}
	provLabels := map[string]string{
		ProvCall:       "call / jmp",
		ProvVirtual:    "callvirt",
		ProvNewobj:     "newobj",
		ProvFnPtr:      "ldftn / ldvirtftn",
		ProvIndirect:   "calli",
		ProvUnresolved: "Unresolved",
	}
	for _, prov := range provOrder {
		count := stats.ProvCounts[prov]
		if count == 0 {
			continue
		}
		color := edgeColor(prov, NASA)
		barW := 0
		if stats.TotalEdges > 0 {
			barW = max(count*200/stats.TotalEdges, 2)
		}
		fmt.Fprintf(w, "<tr><td><span class=\"prov\" style=\"background:%s\"></span></td><td>%s</td><td class=\"num\">%d</td><td><span class=\"bar\" style=\"width:%dpx;background:%s\"></span></td></tr>\n",
			color, provLabels[prov], count, barW, color)
	}
	fmt.Fprintln(w, "</table>")

	fmt.Fprintln(w, "<h2>Graphs</h2>")
	fmt.Fprint(w, "<p>")
	var links []string
	for _, g := range p.Graphs {
		links = append(links, fmt.Sprintf(`<a href="%s">%s</a>`, htmlEscape(g), htmlEscape(g)))
	}
	if p.CFGCount > 0 {
		links = append(links, `<a href="cfg/">Per-method CFGs</a>`)
	}
	if len(links) == 0 {
		fmt.Fprint(w, `<span style="color:#9E9E9E">Run with --graph to generate DOT files</span>`)
	} else {
		fmt.Fprint(w, strings.Join(links, " | "))
	}
	fmt.Fprintln(w, "</p>")

	if len(p.EntryPoints) > 0 {
		fmt.Fprintln(w, "<h2>Entry Points</h2>")
		fmt.Fprintf(w, "<p>%d methods with no incoming resolved calls:</p>\n", len(p.EntryPoints))
		fmt.Fprintln(w, "<table>")
		fmt.Fprintln(w, "<tr><th>Method</th></tr>")
		limit := min(50, len(p.EntryPoints))
		for _, ep := range p.EntryPoints[:limit] {
			cfgLink := ""
			if p.CFGCount > 0 {
				cfgLink = fmt.Sprintf(` <a href="cfg/%s.dot" style="font-size:11px">[cfg]</a>`, SafeFileName(ep))
			}
			fmt.Fprintf(w, "<tr><td class=\"ep\">%s%s</td></tr>\n", htmlEscape(ep), cfgLink)
		}
		if len(p.EntryPoints) > limit {
			fmt.Fprintf(w, "<tr><td>... and %d more</td></tr>\n", len(p.EntryPoints)-limit)
		}
		fmt.Fprintln(w, "</table>")
	}

	if len(stats.TopOwners) > 0 {
		fmt.Fprintln(w, "<h2>Top Types</h2>")
		fmt.Fprintln(w, "<table>")
		fmt.Fprintln(w, "<tr><th>Type</th><th>Methods</th><th></th></tr>")
		limit := min(20, len(stats.TopOwners))
		maxCount := stats.TopOwners[0].Count
		for _, nc := range stats.TopOwners[:limit] {
			barW := max(nc.Count*120/maxCount, 2)
			fmt.Fprintf(w, "<tr><td>%s</td><td class=\"num\">%d</td><td><span class=\"mbar\" style=\"width:%dpx\"></span></td></tr>\n",
				htmlEscape(nc.Name), nc.Count, barW)
		}
		fmt.Fprintln(w, "</table>")
	}

	writeCounts(w, "Top Callers", "Outgoing", stats.TopCallers)
	writeCounts(w, "Top Callees", "Incoming", stats.TopCallees)

	if len(p.Problems) > 0 {
		fmt.Fprintln(w, "<h2>Methods With Problems</h2>")
		fmt.Fprintln(w, "<table>")
		fmt.Fprintln(w, "<tr><th>Token</th><th>Method</th><th>Unresolved</th><th>Error</th></tr>")
		for _, m := range p.Problems {
			fmt.Fprintf(w, "<tr><td>%s</td><td class=\"ep\">%s</td><td class=\"num\">%d</td><td>%s</td></tr>\n",
				htmlEscape(m.Token), htmlEscape(m.Name), m.Unresolved, htmlEscape(m.Error))
		}
		fmt.Fprintln(w, "</table>")
	}

	fmt.Fprintln(w, "</body></html>")
}

func writeCounts(w io.Writer, heading, column string, counts []NameCount) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "<h2>%s</h2>\n", heading)
	fmt.Fprintln(w, "<table>")
	fmt.Fprintf(w, "<tr><th>Method</th><th>%s</th></tr>\n", column)
	for _, nc := range counts[:min(15, len(counts))] {
		fmt.Fprintf(w, "<tr><td>%s</td><td class=\"num\">%d</td></tr>\n", htmlEscape(nc.Name), nc.Count)
	}
	fmt.Fprintln(w, "</table>")
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// SafeFileName converts a method or type name to a safe file name. The CLI
// uses it for listing and CFG paths so the index links resolve.
func SafeFileName(name string) string {
	r := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"`", "_",
	)
	s := r.Replace(name)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
