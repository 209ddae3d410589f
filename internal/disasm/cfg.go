package disasm

import (
	"sort"
	"strconv"

	"cilscope/internal/metadata"
)

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID        int
	Start     int    // index into FuncCFG.Insts (inclusive)
	End       int    // index into FuncCFG.Insts (exclusive)
	Succs     []Succ // successor edges
	IsEntry   bool
	IsHandler bool // first block of a catch, filter, finally or fault handler
	IsTerm    bool // ends with ret, throw or jmp
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken, "F" = fallthrough, "0".."n" = switch case
}

// FuncCFG is a per-method control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []*Inst
}

// BuildCFG constructs a control flow graph from a decoded method body.
// The algorithm:
//  1. Find block leaders: index 0, branch and switch targets, instructions
//     after terminators, and the starts of protected regions and handlers.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
//
// Handler blocks are entered by the runtime, so they carry no incoming edge.
func BuildCFG(name string, il *MethodIL, clauses ...metadata.ExceptionClause) FuncCFG {
	if il == nil || len(il.Insts) == 0 {
		return FuncCFG{Name: name}
	}
	insts := il.Insts

	offToIdx := make(map[int]int, len(insts))
	for i, in := range insts {
		offToIdx[in.Offset] = i
	}

	// Pass 1: Identify block leaders.
	leaders := map[int]bool{0: true}
	for i, in := range insts {
		bi := DecodeBranch(in)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, t := range bi.Targets {
			if idx, ok := offToIdx[t]; ok {
				leaders[idx] = true
			}
		}
	}
	handlers := make(map[int]bool)
	for _, c := range clauses {
		for _, off := range []int{int(c.TryOffset), int(c.TryOffset + c.TryLength), int(c.HandlerOffset)} {
			if idx, ok := offToIdx[off]; ok {
				leaders[idx] = true
			}
		}
		if idx, ok := offToIdx[int(c.HandlerOffset)]; ok {
			handlers[idx] = true
		}
		if c.Flags&metadata.ClauseFilter != 0 {
			if idx, ok := offToIdx[int(c.FilterOffset)]; ok {
				leaders[idx] = true
				handlers[idx] = true
			}
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{
			ID:        i,
			Start:     start,
			End:       end,
			IsEntry:   start == 0,
			IsHandler: handlers[start],
		}
		leaderToBlock[start] = i
	}

	blockAt := func(off int) (int, bool) {
		idx, ok := offToIdx[off]
		if !ok {
			return 0, false
		}
		bid, ok := leaderToBlock[idx]
		return bid, ok
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		last := insts[blk.End-1]
		bi := DecodeBranch(last)
		next, hasNext := leaderToBlock[blk.End]

		switch {
		case bi == nil:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		case bi.IsRet, bi.IsThrow:
			blk.IsTerm = true
		case last.Kind == KindSwitch:
			for n, t := range bi.Targets {
				if bid, ok := blockAt(t); ok {
					blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: strconv.Itoa(n)})
				}
			}
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		case bi.Cond:
			if bid, ok := blockAt(bi.Targets[0]); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: "T"})
			}
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		default:
			if bid, ok := blockAt(bi.Targets[0]); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: bid})
			} else {
				blk.IsTerm = true
			}
		}
	}

	return FuncCFG{
		Name:   name,
		Blocks: blocks,
		Insts:  insts,
	}
}
