package disasm

import (
	"testing"

	"cilscope/internal/metadata"
)

func decode(t *testing.T, code []byte) *MethodIL {
	t.Helper()
	m, err := Decode(code, newFake(), Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return m
}

func TestBuildCFG_Linear(t *testing.T) {
	m := decode(t, asm{}.op(0x00).op(0x00).op(0x2A))
	cfg := BuildCFG("linear", m)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(cfg.Blocks))
	}
	blk := cfg.Blocks[0]
	if blk.Start != 0 || blk.End != 3 {
		t.Errorf("block range = [%d,%d), want [0,3)", blk.Start, blk.End)
	}
	if !blk.IsEntry || !blk.IsTerm {
		t.Errorf("entry=%v term=%v", blk.IsEntry, blk.IsTerm)
	}
	if len(blk.Succs) != 0 {
		t.Errorf("succs = %d, want 0", len(blk.Succs))
	}
}

func TestBuildCFG_ConditionalBranch(t *testing.T) {
	//   00: ldarg.1
	//   01: brtrue.s -> 05
	//   03: ldc.i4.0
	//   04: ret
	//   05: ldc.i4.1
	//   06: ret
	m := decode(t, asm{}.op(0x03).op(0x2D).i8(2).op(0x16).op(0x2A).op(0x17).op(0x2A))
	cfg := BuildCFG("cond", m)

	// Leaders: 0 (entry), 2 (after brtrue.s), 4 (target IL_0005, also after ret).
	if len(cfg.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(cfg.Blocks))
	}
	b0 := cfg.Blocks[0]
	if len(b0.Succs) != 2 {
		t.Fatalf("block 0 succs = %d, want 2", len(b0.Succs))
	}
	if b0.Succs[0] != (Succ{BlockID: 2, Cond: "T"}) {
		t.Errorf("taken edge = %+v", b0.Succs[0])
	}
	if b0.Succs[1] != (Succ{BlockID: 1, Cond: "F"}) {
		t.Errorf("fallthrough edge = %+v", b0.Succs[1])
	}
	for _, i := range []int{1, 2} {
		if !cfg.Blocks[i].IsTerm {
			t.Errorf("block %d should end with ret", i)
		}
	}
}

func TestBuildCFG_Loop(t *testing.T) {
	//   00: nop
	//   01: ldarg.1
	//   02: brtrue.s -> 01
	//   04: ret
	m := decode(t, asm{}.op(0x00).op(0x03).op(0x2D).i8(-3).op(0x2A))
	cfg := BuildCFG("loop", m)
	if len(cfg.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(cfg.Blocks))
	}
	if s := cfg.Blocks[0].Succs; len(s) != 1 || s[0].BlockID != 1 || s[0].Cond != "" {
		t.Errorf("entry succs = %+v, want fallthrough to 1", s)
	}
	s := cfg.Blocks[1].Succs
	if len(s) != 2 || s[0] != (Succ{BlockID: 1, Cond: "T"}) || s[1] != (Succ{BlockID: 2, Cond: "F"}) {
		t.Errorf("loop succs = %+v", s)
	}
}

func TestBuildCFG_Switch(t *testing.T) {
	//   00: ldarg.1
	//   01: switch (IL_000E, IL_0010)
	//   0E: ldc.i4.0 ; ret
	//   10: ldc.i4.1 ; ret
	code := asm{}.op(0x03).sw(0, 2).op(0x16).op(0x2A).op(0x17).op(0x2A)
	m := decode(t, code)
	cfg := BuildCFG("switch", m)
	if len(cfg.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(cfg.Blocks))
	}
	s := cfg.Blocks[0].Succs
	want := []Succ{{BlockID: 1, Cond: "0"}, {BlockID: 2, Cond: "1"}, {BlockID: 1, Cond: "F"}}
	if len(s) != len(want) {
		t.Fatalf("succs = %+v, want %+v", s, want)
	}
	for i := range want {
		if s[i] != want[i] {
			t.Errorf("succ %d = %+v, want %+v", i, s[i], want[i])
		}
	}
}

func TestBuildCFG_Throw(t *testing.T) {
	m := decode(t, asm{}.op(0x14).op(0x7A).op(0x2A)) // ldnull; throw; ret
	cfg := BuildCFG("throw", m)
	if len(cfg.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(cfg.Blocks))
	}
	if !cfg.Blocks[0].IsTerm || len(cfg.Blocks[0].Succs) != 0 {
		t.Errorf("throw block term=%v succs=%v", cfg.Blocks[0].IsTerm, cfg.Blocks[0].Succs)
	}
}

func TestBuildCFG_Handlers(t *testing.T) {
	// try { nop; leave } catch { pop; leave } ret
	code := asm{}.
		op(0x00).       // 00 nop
		op(0xDE).i8(3). // 01 leave.s -> 06
		op(0x26).       // 03 pop
		op(0xDE).i8(0). // 04 leave.s -> 06
		op(0x2A)        // 06 ret
	m := decode(t, code)
	clauses := []metadata.ExceptionClause{{
		Flags:         metadata.ClauseCatch,
		TryOffset:     0,
		TryLength:     3,
		HandlerOffset: 3,
		HandlerLength: 3,
		ClassToken:    tokConsole,
	}}
	cfg := BuildCFG("handlers", m, clauses...)
	// Leaders: 0, 2 (pop: after leave, handler start), 4 (ret).
	if len(cfg.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(cfg.Blocks))
	}
	if !cfg.Blocks[1].IsHandler {
		t.Error("block at IL_0003 should be a handler")
	}
	if cfg.Blocks[0].IsHandler {
		t.Error("entry is not a handler")
	}
	if s := cfg.Blocks[0].Succs; len(s) != 1 || s[0].BlockID != 2 {
		t.Errorf("try block succs = %+v, want leave to block 2", s)
	}
}

func TestBuildCFG_Empty(t *testing.T) {
	cfg := BuildCFG("empty", &MethodIL{})
	if len(cfg.Blocks) != 0 || cfg.Name != "empty" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg := BuildCFG("nil", nil); len(cfg.Blocks) != 0 {
		t.Errorf("nil il produced %d blocks", len(cfg.Blocks))
	}
}

func TestDecodeBranch(t *testing.T) {
	m := decode(t, asm{}.
		op(0x00).       // nop
		op(0x2B).i8(0). // br.s
		op(0x2C).i8(0). // brfalse.s
		op(0x28).tok(tokRun).
		op(0x7A). // throw
		op(0x2A)) // ret
	tests := []struct {
		idx  int
		want *BranchInfo
	}{
		{0, nil},
		{1, &BranchInfo{Targets: []int{3}}},
		{2, &BranchInfo{Targets: []int{5}, Cond: true}},
		{3, nil},
		{4, &BranchInfo{IsThrow: true}},
		{5, &BranchInfo{IsRet: true}},
	}
	for _, tt := range tests {
		in := m.Insts[tt.idx]
		got := DecodeBranch(in)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("%s: DecodeBranch = %+v, want %+v", in.Op.Name, got, tt.want)
			continue
		}
		if got == nil {
			continue
		}
		if got.Cond != tt.want.Cond || got.IsRet != tt.want.IsRet || got.IsThrow != tt.want.IsThrow ||
			len(got.Targets) != len(tt.want.Targets) {
			t.Errorf("%s: DecodeBranch = %+v, want %+v", in.Op.Name, got, tt.want)
		}
		for i := range tt.want.Targets {
			if got.Targets[i] != tt.want.Targets[i] {
				t.Errorf("%s: target %d = %d, want %d", in.Op.Name, i, got.Targets[i], tt.want.Targets[i])
			}
		}
		if IsBranchTerminator(in) != (tt.want != nil) {
			t.Errorf("%s: IsBranchTerminator mismatch", in.Op.Name)
		}
	}
}
