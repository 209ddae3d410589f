package disasm

import "cilscope/internal/opcode"

// BranchInfo describes how an instruction ends a basic block.
type BranchInfo struct {
	Targets []int // absolute target offsets; empty for ret/throw
	Cond    bool  // execution may also fall through
	IsRet   bool  // ret, endfinally, endfilter or jmp
	IsThrow bool  // throw or rethrow
}

// DecodeBranch reports the block-ending effect of in, or nil when control
// always continues with the next instruction.
func DecodeBranch(in *Inst) *BranchInfo {
	if in.Op.Name == "jmp" {
		return &BranchInfo{IsRet: true}
	}
	switch in.Op.Flow {
	case opcode.FlowReturn:
		return &BranchInfo{IsRet: true}
	case opcode.FlowThrow:
		return &BranchInfo{IsThrow: true}
	case opcode.FlowBranch:
		return &BranchInfo{Targets: in.Targets}
	case opcode.FlowCondBranch:
		return &BranchInfo{Targets: in.Targets, Cond: true}
	}
	return nil
}

// IsBranchTerminator reports whether a basic block ends after in.
func IsBranchTerminator(in *Inst) bool {
	return DecodeBranch(in) != nil
}
