package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cilscope/internal/disasm"
	"cilscope/internal/output"
	"cilscope/internal/render"
)

type renderFlags struct {
	in       string
	maxNodes int
	title    string
	cfg      bool
	svg      bool
}

func newRenderCmd(g *globals) *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render DOT graphs and an HTML index from disasm output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.in, "in", "", "input directory (disasm --out)")
	fl.IntVar(&f.maxNodes, "max-nodes", 0, "max method nodes in the call graph (0 = all)")
	fl.StringVar(&f.title, "title", "", "title for graphs and HTML (default: input dir name)")
	fl.BoolVar(&f.cfg, "cfg", false, "render CFGs of reachable methods from asm/*.bin")
	fl.BoolVar(&f.svg, "svg", false, "convert DOT files to SVG with graphviz dot")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func runRender(g *globals, f *renderFlags) error {
	title := f.title
	if title == "" {
		title = filepath.Base(filepath.Clean(f.in))
	}

	methods, err := output.ReadJSONL[disasm.MethodRecord](filepath.Join(f.in, "methods.jsonl"))
	if err != nil {
		return fmt.Errorf("read methods.jsonl: %w", err)
	}
	fmt.Fprintf(os.Stderr, "read %d methods\n", len(methods))
	edges, err := output.ReadJSONL[disasm.CallEdgeRecord](filepath.Join(f.in, "call_edges.jsonl"))
	if err != nil {
		return fmt.Errorf("read call_edges.jsonl: %w", err)
	}
	fmt.Fprintf(os.Stderr, "read %d call edges\n", len(edges))

	stats := render.ComputeStats(methods, edges)
	entryPoints := render.FindEntryPoints(methods, edges)
	reachable := render.ReachableSet(entryPoints, edges)
	fmt.Fprintf(os.Stderr, "entry points: %d, reachable methods: %d / %d\n",
		len(entryPoints), len(reachable), len(methods))

	graphs := []struct{ name, dot string }{
		{"reachable.dot", render.ReachabilityDOT(methods, edges, reachable, entryPoints, title, render.NASA)},
		{"callgraph.dot", render.CallgraphDOT(methods, edges, title, render.NASA, f.maxNodes)},
		{"classgraph.dot", render.ClassgraphDOT(methods, edges, title, render.NASA, f.maxNodes)},
	}
	page := render.IndexPage{
		Title:          title,
		Stats:          stats,
		EntryPoints:    entryPoints,
		ReachableCount: len(reachable),
	}
	renderDir := filepath.Join(f.in, "render")
	for _, gr := range graphs {
		path, err := output.WriteText(renderDir, gr.name, gr.dot)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(gr.dot))
		page.Graphs = append(page.Graphs, gr.name)
		if f.svg {
			svg := strings.TrimSuffix(path, ".dot") + ".svg"
			if err := runDot(path, svg, "svg"); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %s: %v\n", svg, err)
			}
		}
	}

	for _, m := range methods {
		if m.Invalid || m.Unresolved > 0 {
			page.Problems = append(page.Problems, m)
		}
	}

	if f.cfg {
		n, err := renderCFGs(g, f.in, renderDir, methods, reachable)
		if err != nil {
			return err
		}
		page.CFGCount = n
		fmt.Fprintf(os.Stderr, "wrote %d CFG DOTs to %s\n", n, filepath.Join(renderDir, "cfg"))
	}

	var html strings.Builder
	render.WriteIndexHTML(&html, page)
	path, err := output.WriteText(renderDir, "index.html", html.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}

// renderCFGs decodes the saved body bytes of every reachable method without
// metadata, so token operands render as raw tokens.
func renderCFGs(g *globals, in, renderDir string, methods []disasm.MethodRecord, reachable map[string]bool) (int, error) {
	opts := disasm.Options{Options: g.cfg.Options()}
	count := 0
	for _, m := range methods {
		if !reachable[m.Name] || m.Invalid {
			continue
		}
		bin := filepath.Join(in, "asm", methodFile(m.Owner, m.Name, m.Token)+".bin")
		code, err := os.ReadFile(bin)
		if err != nil {
			log.Debugf("no body for %s: %v", m.Name, err)
			continue
		}
		il, err := disasm.Decode(code, nil, opts)
		if err != nil {
			log.Warningf("%s: %v", m.Name, err)
			continue
		}
		cfg := disasm.BuildCFG(m.Name, il)
		dot := render.CFGDOT(cfg, il.Formatter(), render.NASA)
		if _, err := output.WriteText(renderDir, filepath.Join("cfg", render.SafeFileName(m.Name)+".dot"), dot); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func runDot(dotPath, outPath, format string) error {
	cmd := exec.Command("dot", "-T"+format, "-o", outPath, dotPath)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
