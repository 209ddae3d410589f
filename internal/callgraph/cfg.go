package callgraph

import (
	"fmt"
	"sort"

	"github.com/zboralski/lattice"

	"cilscope/internal/disasm"
)

// maxLiteral bounds string literals shown inside CFG blocks.
const maxLiteral = 50

// BuildCFG constructs a lattice.CFGGraph from decoded methods.
// Each FuncInfo is partitioned by disasm.BuildCFG and then mapped to
// lattice types.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		lcfg, _ := BuildFuncCFG(f)
		cg.Funcs = append(cg.Funcs, lcfg)
	}
	return cg
}

// BuildFuncCFG builds a single-method lattice.FuncCFG.
// Returns the FuncCFG and the number of basic blocks (for filtering trivial
// methods).
func BuildFuncCFG(f FuncInfo) (*lattice.FuncCFG, int) {
	dcfg := disasm.BuildCFG(f.Name, f.IL, f.Clauses...)
	lcfg := convertFuncCFG(&dcfg, f.CallEdges)
	if f.Strings {
		injectStrings(lcfg, &dcfg)
	}
	return lcfg, len(dcfg.Blocks)
}

// injectStrings adds ldstr literals as CallSite entries in their blocks.
func injectStrings(lcfg *lattice.FuncCFG, dcfg *disasm.FuncCFG) {
	for bi, db := range dcfg.Blocks {
		added := false
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			in := dcfg.Insts[idx]
			if in.Kind != disasm.KindString {
				continue
			}
			v, ok := in.Value()
			if !ok {
				continue
			}
			val := v.Str
			if len(val) > maxLiteral {
				val = val[:maxLiteral-3] + "..."
			}
			lcfg.Blocks[bi].Calls = append(lcfg.Blocks[bi].Calls, lattice.CallSite{
				Offset: idx,
				Callee: fmt.Sprintf("%q", val),
			})
			added = true
		}
		if added {
			sort.Slice(lcfg.Blocks[bi].Calls, func(i, j int) bool {
				return lcfg.Blocks[bi].Calls[i].Offset < lcfg.Blocks[bi].Calls[j].Offset
			})
		}
	}
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
// Call edges are mapped into blocks by matching instruction offsets.
func convertFuncCFG(dcfg *disasm.FuncCFG, edges []disasm.CallEdge) *lattice.FuncCFG {
	edgeByOffset := make(map[int]disasm.CallEdge, len(edges))
	for _, e := range edges {
		edgeByOffset[e.FromOffset] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}

		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}

		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			if e, ok := edgeByOffset[dcfg.Insts[idx].Offset]; ok {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: e.Target,
				})
			}
		}

		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
