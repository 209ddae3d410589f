package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"cilscope/internal/callgraph"
	"cilscope/internal/cilfmt"
	"cilscope/internal/disasm"
	"cilscope/internal/export"
	"cilscope/internal/metadata"
	"cilscope/internal/output"
	"cilscope/internal/render"
)

var log = commonlog.GetLogger("cilscope.cmd")

type disasmFlags struct {
	asm     string
	out     string
	typ     string
	method  string
	graph   bool
	limit   int
	strings bool
}

func newDisasmCmd(g *globals) *cobra.Command {
	f := &disasmFlags{}
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Disassemble CIL method bodies",
		Long: `Decode every method body of an assembly into an ILASM-style listing.

Without --out the listings are printed to stdout. With --out each method is
written to asm/<Type>/<Method>_<token>.il together with its raw bytes, and
methods.jsonl and call_edges.jsonl summarize the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(cmd.Context(), g, f, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.asm, "asm", "", "path to the assembly (.dll or .exe)")
	fl.StringVar(&f.out, "out", "", "output directory")
	fl.StringVar(&f.typ, "type", "", "only methods of this type (full or simple name)")
	fl.StringVar(&f.method, "method", "", "only methods with this name")
	fl.BoolVar(&f.graph, "graph", false, "build call graph and per-method CFG DOT files (requires --out)")
	fl.IntVar(&f.limit, "limit", 0, "max methods to disassemble (0 = all)")
	fl.BoolVar(&f.strings, "strings", false, "show ldstr literals in CFG blocks")
	_ = cmd.MarkFlagRequired("asm")
	return cmd
}

// selected is one method picked for disassembly.
type selected struct {
	method *metadata.Method
	owner  string
}

func selectMethods(m *metadata.Module, typ, method string) ([]selected, error) {
	types, err := m.Types()
	if err != nil {
		log.Warningf("type table: %v", err)
	}
	var out []selected
	for _, td := range types {
		if typ != "" && td.FullName() != typ && td.Name() != typ {
			continue
		}
		for _, md := range td.Methods {
			if method != "" && md.Name != method {
				continue
			}
			out = append(out, selected{method: md, owner: td.FullName()})
		}
	}
	if len(out) == 0 && (typ != "" || method != "") {
		return nil, fmt.Errorf("no method matches --type %q --method %q", typ, method)
	}
	return out, nil
}

// methodFile is the asm/ path stem of a method, relative to the asm dir.
func methodFile(owner, name, token string) string {
	short := strings.TrimPrefix(name, owner+"::")
	return filepath.Join(render.SafeFileName(owner), render.SafeFileName(short)+"_"+token)
}

func runDisasm(ctx context.Context, g *globals, f *disasmFlags, stdout io.Writer) error {
	if f.out == "" {
		f.out = g.cfg.Output.Dir
	}
	f.graph = f.graph || (g.cfg.Output.Graph && f.out != "")
	if f.graph && f.out == "" {
		return fmt.Errorf("--graph requires --out")
	}
	opts := g.cfg.Options()

	mod, err := metadata.Open(f.asm)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	log.Infof("loaded %s %s from %s", mod.Name(), mod.Version(), mod.Path())

	methods, err := selectMethods(mod, f.typ, f.method)
	if err != nil {
		return err
	}
	if f.limit > 0 && f.limit < len(methods) {
		methods = methods[:f.limit]
	}

	if f.out == "" {
		return printListings(mod, methods, opts, stdout)
	}

	if err := os.MkdirAll(f.out, 0755); err != nil {
		return fmt.Errorf("mkdir output: %w", err)
	}
	if err := output.WriteInfoJSON(f.out, mod.Info()); err != nil {
		return err
	}
	methodsOut, err := output.CreateJSONL(f.out, "methods.jsonl")
	if err != nil {
		return err
	}
	defer methodsOut.Close()
	edgesOut, err := output.CreateJSONL(f.out, "call_edges.jsonl")
	if err != nil {
		return err
	}
	defer edgesOut.Close()

	var (
		funcInfos []callgraph.FuncInfo
		records   []disasm.CallEdgeRecord
		cfgCount  int
		invalid   int
		skipped   int
	)
	for _, s := range methods {
		md := s.method
		name := md.FullName()
		token := md.Token.String()
		rec := disasm.MethodRecord{
			Token:     token,
			Name:      name,
			Owner:     s.owner,
			Signature: disasm.FormatMethodSig(nil, md.Sig),
		}
		if md.Sig != nil {
			rec.ParamCount = len(md.Sig.Params)
		}

		body, err := mod.MethodBody(md)
		if errors.Is(err, metadata.ErrNoBody) {
			skipped++
			continue
		}
		if err != nil {
			if opts.Mode == cilfmt.ModeStrict {
				return fmt.Errorf("%s: %w", name, err)
			}
			rec.Invalid = true
			rec.Error = err.Error()
			invalid++
			if err := methodsOut.Encode(&rec); err != nil {
				return err
			}
			continue
		}
		rec.CodeSize = len(body.Code)
		rec.MaxStack = body.MaxStack

		scope := mod.Scope(md, body)
		il, err := disasm.Decode(body.Code, scope, disasm.Options{
			Options:   opts,
			Formatter: disasm.NewTypeFormatter(scope),
		})
		if err != nil && (opts.Mode == cilfmt.ModeStrict || il == nil) {
			return fmt.Errorf("%s: %w", name, err)
		}
		rec.Signature = disasm.FormatMethodSig(il.Formatter(), md.Sig)
		rec.Insts = len(il.Insts)
		rec.Unresolved = il.Diags.Count(cilfmt.DiagUnresolved)
		if il.Invalid {
			rec.Invalid = true
			rec.Error = il.Err.Error()
			invalid++
		}

		stem := methodFile(s.owner, name, token)
		annotators := []disasm.Annotator{
			disasm.HandlerAnnotator(body.Clauses),
			disasm.ErrorAnnotator(),
			disasm.TargetAnnotator(),
		}
		if err := output.WriteIL(f.out, stem, il, annotators...); err != nil {
			return err
		}
		if err := output.WriteBin(f.out, stem, body.Code); err != nil {
			return err
		}

		edges := disasm.ExtractCallEdges(il)
		for _, e := range edges {
			r := disasm.NewCallEdgeRecord(name, e)
			records = append(records, r)
			if err := edgesOut.Encode(&r); err != nil {
				return err
			}
		}

		if f.graph && !il.Invalid {
			fi := callgraph.FuncInfo{
				Name:      name,
				IL:        il,
				CallEdges: edges,
				Clauses:   body.Clauses,
				Strings:   f.strings,
			}
			lcfg, nblocks := callgraph.BuildFuncCFG(fi)
			rec.Blocks = nblocks
			if lcfg != nil {
				dot := latrender.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}, name)
				if _, err := output.WriteText(f.out, filepath.Join("cfg", stem+".dot"), dot); err != nil {
					return err
				}
				cfgCount++
			}
			fi.IL = nil // keep only what the call graph needs
			funcInfos = append(funcInfos, fi)
		}

		if err := methodsOut.Encode(&rec); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "wrote %s (%d entries, %d invalid, %d without body)\n",
		methodsOut.Path, methodsOut.Count(), invalid, skipped)
	fmt.Fprintf(os.Stderr, "wrote %s (%d entries)\n", edgesOut.Path, edgesOut.Count())

	if f.graph && len(funcInfos) > 0 {
		cg := callgraph.BuildCallGraph(funcInfos)
		path, err := output.WriteText(f.out, "callgraph.dot", latrender.DOT(cg, mod.Name()))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d nodes, %d edges)\n", path, len(cg.Nodes), len(cg.Edges))
		fmt.Fprintf(os.Stderr, "wrote %d per-method CFG DOTs to %s\n", cfgCount, filepath.Join(f.out, "cfg"))
	}

	if g.cfg.Neo4j.URI != "" {
		return exportCalls(ctx, g, records)
	}
	return nil
}

func printListings(mod *metadata.Module, methods []selected, opts cilfmt.Options, w io.Writer) error {
	for _, s := range methods {
		md := s.method
		body, err := mod.MethodBody(md)
		if errors.Is(err, metadata.ErrNoBody) {
			continue
		}
		if err != nil {
			if opts.Mode == cilfmt.ModeStrict {
				return fmt.Errorf("%s: %w", md.FullName(), err)
			}
			fmt.Fprintf(w, "// %s: %v\n\n", md.FullName(), err)
			continue
		}
		scope := mod.Scope(md, body)
		il, err := disasm.Decode(body.Code, scope, disasm.Options{Options: opts})
		if err != nil && (opts.Mode == cilfmt.ModeStrict || il == nil) {
			return fmt.Errorf("%s: %w", md.FullName(), err)
		}
		fmt.Fprintf(w, ".method %s %s\n", md.FullName(), disasm.FormatMethodSig(il.Formatter(), md.Sig))
		fmt.Fprintf(w, "// code size %d, maxstack %d\n", len(body.Code), body.MaxStack)
		fmt.Fprint(w, il.Format(disasm.HandlerAnnotator(body.Clauses), disasm.ErrorAnnotator(), disasm.TargetAnnotator()))
		fmt.Fprintln(w)
	}
	return nil
}

func exportCalls(ctx context.Context, g *globals, records []disasm.CallEdgeRecord) error {
	n := g.cfg.Neo4j
	loader, err := export.NewNeo4jLoader(ctx, n.URI, n.User, n.Password)
	if err != nil {
		return err
	}
	defer loader.Close(ctx)
	if err := loader.CreateIndexes(ctx); err != nil {
		return err
	}
	if err := loader.LoadCalls(ctx, records); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d call edges to %s\n", len(records), n.URI)
	return nil
}
