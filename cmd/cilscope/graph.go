package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"cilscope/internal/depgraph"
	"cilscope/internal/export"
	"cilscope/internal/metadata"
	"cilscope/internal/output"
	"cilscope/internal/render"
)

type graphFlags struct {
	asm     string
	out     string
	exclude []string
	paths   []string
	neo4j   struct {
		uri      string
		user     string
		password string
		clean    bool
	}
}

func newGraphCmd(g *globals) *cobra.Command {
	f := &graphFlags{}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build assembly, class and interface dependency graphs",
		Long: `Walk the assembly reference closure of a root assembly, then build the
class inheritance and interface inheritance graphs of every loaded assembly
and report dependency cycles.

Referenced assemblies are searched in the root's directory, then in each
--path and [analysis].paths entry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.asm, "asm", "", "path to the root assembly")
	fl.StringVar(&f.out, "out", "", "output directory for DOT files and graph.json")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "assembly/namespace prefixes to skip (replaces config)")
	fl.StringSliceVar(&f.paths, "path", nil, "extra directories to search for referenced assemblies")
	fl.StringVar(&f.neo4j.uri, "neo4j-uri", "", "export to Neo4j at this URI")
	fl.StringVar(&f.neo4j.user, "neo4j-user", "", "Neo4j user")
	fl.StringVar(&f.neo4j.password, "neo4j-password", "", "Neo4j password")
	fl.BoolVar(&f.neo4j.clean, "neo4j-clean", false, "delete existing cilscope nodes before export")
	_ = cmd.MarkFlagRequired("asm")
	return cmd
}

func runGraph(cmd *cobra.Command, g *globals, f *graphFlags) error {
	cfg := g.cfg
	if cmd.Flags().Changed("exclude") {
		cfg.Analysis.Exclude = f.exclude
	}
	if f.out == "" {
		f.out = cfg.Output.Dir
	}
	if f.neo4j.uri != "" {
		cfg.Neo4j.URI = f.neo4j.uri
	}
	if f.neo4j.user != "" {
		cfg.Neo4j.User = f.neo4j.user
	}
	if f.neo4j.password != "" {
		cfg.Neo4j.Password = f.neo4j.password
	}
	cfg.Neo4j.Clean = cfg.Neo4j.Clean || f.neo4j.clean

	root, err := metadata.Open(f.asm)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	search := append([]string{filepath.Dir(f.asm)}, f.paths...)
	search = append(search, cfg.Analysis.Paths...)
	dl := metadata.NewDirLoader(search...)
	dl.Add(root)

	b := depgraph.NewBuilder(depgraph.Config{Exclude: cfg.Analysis.Exclude},
		depgraph.DirLoader{DirLoader: dl}, commonlog.GetLogger("cilscope.depgraph"))
	r, err := b.Build(root)
	if err != nil {
		return err
	}

	printCycleReport(cmd.OutOrStdout(), r)

	if f.out != "" {
		if err := writeGraphs(f.out, r); err != nil {
			return err
		}
	}
	if cfg.Neo4j.URI != "" {
		return exportGraph(cmd.Context(), g, r)
	}
	return nil
}

func writeGraphs(dir string, r *depgraph.Result) error {
	for _, name := range []string{depgraph.GraphAssemblies, depgraph.GraphClasses, depgraph.GraphInterfaces} {
		path, err := output.WriteText(dir, name+".dot", render.DependencyDOT(r, name, render.NASA))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	}
	doc, err := output.WriteGraphJSON(dir, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d assemblies, %d classes, %d interfaces)\n",
		filepath.Join(dir, "graph.json"), len(doc.Assemblies), len(doc.Classes), len(doc.Interfaces))
	return nil
}

func exportGraph(ctx context.Context, g *globals, r *depgraph.Result) error {
	n := g.cfg.Neo4j
	loader, err := export.NewNeo4jLoader(ctx, n.URI, n.User, n.Password)
	if err != nil {
		return err
	}
	defer loader.Close(ctx)

	if n.Clean {
		if err := loader.CleanGraph(ctx); err != nil {
			return err
		}
	}
	if err := loader.CreateIndexes(ctx); err != nil {
		return err
	}
	doc := output.NewGraphDoc(r)
	if err := loader.LoadGraph(ctx, doc); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d assemblies, %d classes, %d interfaces to %s\n",
		len(doc.Assemblies), len(doc.Classes), len(doc.Interfaces), n.URI)
	return nil
}
