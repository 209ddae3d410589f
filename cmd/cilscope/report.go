package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cilscope/internal/depgraph"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	cycleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	keyColumnLen = 16
)

// printKV prints an aligned "key  value" line.
func printKV(w io.Writer, key, value string) {
	pad := max(keyColumnLen-len(key), 1)
	fmt.Fprintf(w, "%s%s%s\n", keyStyle.Render(key), strings.Repeat(" ", pad), value)
}

// printCycleReport summarizes the graphs and lists every cycle found.
// It returns the number of cycles.
func printCycleReport(w io.Writer, r *depgraph.Result) int {
	fmt.Fprintln(w, titleStyle.Render("Dependency graphs for "+r.Root))
	printKV(w, "assemblies", fmt.Sprintf("%d (%d loaded)", r.Assemblies.VertexCount(), len(r.LoadedAssemblies())))
	printKV(w, "classes", fmt.Sprintf("%d (%d inheritance edges)", r.Classes.VertexCount(), r.Classes.EdgeCount()))
	printKV(w, "interfaces", fmt.Sprintf("%d (%d inheritance edges)", r.Interfaces.VertexCount(), r.Interfaces.EdgeCount()))

	for _, v := range r.Assemblies.Vertices() {
		switch {
		case v.Excluded:
			fmt.Fprintln(w, mutedStyle.Render("   skipped "+v.Name()))
		case v.LoadErr != nil:
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("   not loaded %s: %v", v.Name(), v.LoadErr)))
		}
	}

	cycles := r.Cycles()
	if len(cycles) == 0 {
		fmt.Fprintln(w, okStyle.Render("no cycles"))
		return 0
	}
	for _, c := range cycles {
		fmt.Fprintln(w, cycleStyle.Render("cycle in "+c.Graph+":"))
		fmt.Fprintln(w, "   "+strings.Join(c.Path, " -> "))
	}
	return len(cycles)
}
