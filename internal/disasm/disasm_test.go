package disasm

import (
	"errors"
	"strings"
	"testing"

	"cilscope/internal/cilfmt"
	"cilscope/internal/metadata"
)

// body returns each instruction as "opcode operand", without labels.
func body(t *testing.T, m *MethodIL) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(strings.TrimSuffix(m.Format(), "\n"), "\n") {
		i := strings.Index(line, ": ")
		if i < 0 {
			t.Fatalf("line without label: %q", line)
		}
		out = append(out, line[i+2:])
	}
	return out
}

func checkLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodePlainOperands(t *testing.T) {
	code := asm{}.
		op(0x1F).i8(-5).
		op(0x20).i32(100000).
		op(0x21).i64(-1).
		op(0x22).f32(1.5).
		op(0x23).f64(2.25).
		op(0x00).
		op(0x2A)

	m, err := Decode(code, nil, Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{
		"IL_0000: ldc.i4.s -5",
		"IL_0002: ldc.i4 100000",
		"IL_0007: ldc.i8 -1",
		"IL_0010: ldc.r4 1.5",
		"IL_0015: ldc.r8 2.25",
		"IL_001E: nop",
		"IL_001F: ret",
	}
	checkLines(t, strings.Split(strings.TrimSuffix(m.String(), "\n"), "\n"), want)

	if m.Insts[0].Operand != int8(-5) {
		t.Errorf("ldc.i4.s operand = %#v, want int8(-5)", m.Insts[0].Operand)
	}
	if m.Insts[6].Size != 1 || m.Insts[6].End() != len(code) {
		t.Errorf("ret size=%d end=%d", m.Insts[6].Size, m.Insts[6].End())
	}
}

func TestDecodeEmpty(t *testing.T) {
	m, err := Decode(nil, newFake(), Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Invalid || len(m.Insts) != 0 {
		t.Fatalf("invalid=%v insts=%d", m.Invalid, len(m.Insts))
	}
	if m.Format() != "" {
		t.Errorf("Format = %q, want empty", m.Format())
	}
}

func TestDecodeBranches(t *testing.T) {
	code := asm{}.
		op(0x03).          // 00 ldarg.1
		op(0x2D).i8(2).    // 01 brtrue.s -> 05
		op(0x16).          // 03 ldc.i4.0
		op(0x2A).          // 04 ret
		op(0x17).          // 05 ldc.i4.1
		op(0x38).i32(-11). // 06 br -> 00
		op(0x2A)           // 0B ret

	m, err := Decode(code, newFake(), Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkLines(t, body(t, m), []string{
		"ldarg.1 // n int32",
		"brtrue.s IL_0005",
		"ldc.i4.0",
		"ret",
		"ldc.i4.1",
		"br IL_0000",
		"ret",
	})

	br := m.Insts[1]
	if br.Kind != KindBranch || len(br.Targets) != 1 || br.Targets[0] != 5 {
		t.Fatalf("brtrue.s kind=%s targets=%v", br.Kind, br.Targets)
	}
	v, ok := br.Value()
	if !ok || v.Targets[0] != m.InstAt(5) {
		t.Errorf("brtrue.s value not linked to IL_0005")
	}
	for _, off := range []int{0, 5} {
		if !m.InstAt(off).IsTarget {
			t.Errorf("IL_%04X should be a branch target", off)
		}
	}
	if m.InstAt(3).IsTarget {
		t.Error("IL_0003 is not a branch target")
	}
	if m.InstAt(2) != nil {
		t.Error("InstAt(2) falls inside brtrue.s")
	}
}

func TestDecodeSwitch(t *testing.T) {
	code := asm{}.sw(0, 1).op(0x00).op(0x2A)
	m, err := Decode(code, nil, Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sw := m.Insts[0]
	if sw.Kind != KindSwitch || sw.Size != 13 {
		t.Fatalf("switch kind=%s size=%d", sw.Kind, sw.Size)
	}
	if got := sw.Format(m.Formatter()); got != "IL_0000: switch (IL_000D, IL_000E)" {
		t.Errorf("switch = %q", got)
	}
	if !m.InstAt(13).IsTarget || !m.InstAt(14).IsTarget {
		t.Error("switch targets not marked")
	}
}

func TestDecodeSwitchTableTooLarge(t *testing.T) {
	code := asm{0x45}.i32(1000)
	m, err := Decode(code, nil, Options{})
	if !errors.Is(err, cilfmt.ErrStructural) {
		t.Fatalf("err = %v, want structural", err)
	}
	if !m.Invalid {
		t.Error("stream should be invalid")
	}
}

func TestDecodeBadTarget(t *testing.T) {
	code := asm{}.op(0x2B).i8(5).op(0x2A) // br.s -> 07
	m, err := Decode(code, newFake(), Options{})
	if !errors.Is(err, cilfmt.ErrTarget) {
		t.Fatalf("err = %v, want ErrTarget", err)
	}
	var te *TargetError
	if !errors.As(err, &te) || te.Offset != 0 || te.Target != 7 {
		t.Fatalf("TargetError = %+v", te)
	}
	if !m.Invalid || len(m.Insts) != 0 {
		t.Errorf("invalid=%v insts=%d", m.Invalid, len(m.Insts))
	}
	if m.Diags.Count(cilfmt.DiagBadTarget) != 1 {
		t.Errorf("diags = %v", m.Diags.Items())
	}
	if !strings.HasPrefix(m.Format(), "// invalid method body") {
		t.Errorf("Format = %q", m.Format())
	}
}

func TestDecodeStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		is   error
		diag cilfmt.DiagKind
	}{
		{"unknown one-byte", []byte{0x00, 0x24}, ErrUnknownOpcode, cilfmt.DiagUnknownOpcode},
		{"unknown two-byte", []byte{0xFE, 0xFF}, ErrUnknownOpcode, cilfmt.DiagUnknownOpcode},
		{"lone prefix", []byte{0xFE}, cilfmt.ErrRange, cilfmt.DiagTruncated},
		{"short int32", []byte{0x20, 0x01}, cilfmt.ErrRange, cilfmt.DiagTruncated},
		{"short token", []byte{0x72, 0x01, 0x00}, cilfmt.ErrRange, cilfmt.DiagTruncated},
		{"short branch", []byte{0x2B}, cilfmt.ErrRange, cilfmt.DiagTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.code, nil, Options{})
			if !errors.Is(err, tt.is) {
				t.Fatalf("err = %v, want %v", err, tt.is)
			}
			if !errors.Is(err, cilfmt.ErrStructural) {
				t.Errorf("err %v does not wrap ErrStructural", err)
			}
			if !m.Invalid || m.Insts != nil || m.Err == nil {
				t.Errorf("invalid=%v insts=%v err=%v", m.Invalid, m.Insts, m.Err)
			}
			if m.Diags.Count(tt.diag) != 1 {
				t.Errorf("diags = %v", m.Diags.Items())
			}
		})
	}
}

func TestDecodeMaxSteps(t *testing.T) {
	code := []byte{0x00, 0x00, 0x00, 0x00, 0x2A}
	m, err := Decode(code, nil, Options{Options: cilfmt.Options{MaxSteps: 3}})
	if !errors.Is(err, cilfmt.ErrStructural) {
		t.Fatalf("err = %v, want structural", err)
	}
	if !m.Invalid || m.Diags.Count(cilfmt.DiagClamped) != 1 {
		t.Errorf("invalid=%v diags=%v", m.Invalid, m.Diags.Items())
	}

	m, err = Decode(code, nil, Options{Options: cilfmt.Options{MaxSteps: 5}})
	if err != nil || len(m.Insts) != 5 {
		t.Fatalf("exact limit: err=%v insts=%d", err, len(m.Insts))
	}
}

func TestResolveOperands(t *testing.T) {
	code := asm{}.
		op(0x02).                   // ldarg.0
		op(0x7B).tok(tokCount).     // ldfld
		op(0x72).tok(tokHello).     // ldstr
		op(0x28).tok(tokRun).       // call
		op(0x28).tok(tokWriteLine). // call via MemberRef
		op(0x7E).tok(tokPointX).    // ldsfld via MemberRef
		op(0x8C).tok(tokWidget).    // box
		op(0xD0).tok(tokConsole).   // ldtoken type
		op(0xD0).tok(tokRun).       // ldtoken method
		op(0xD0).tok(tokCount).     // ldtoken field
		op(0x29).tok(tokSig).       // calli
		op(0x13, 0x01).             // stloc.s 1
		op(0x06).                   // ldloc.0
		op(0x0E, 0x02).             // ldarg.s 2
		op(0x2A)

	p := newFake()
	m, err := Decode(code, p, Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkLines(t, body(t, m), []string{
		"ldarg.0 // this Demo.Widget",
		"ldfld int32 Demo.Widget::count",
		`ldstr "hello"`,
		"call instance void Demo.Widget::Run(int32, string)",
		"call void [mscorlib]System.Console::WriteLine(string)",
		"ldsfld int32 Demo.Point::X",
		"box Demo.Widget",
		"ldtoken [mscorlib]System.Console",
		"ldtoken method instance void Demo.Widget::Run(int32, string)",
		"ldtoken field int32 Demo.Widget::count",
		"calli int32(string)",
		"stloc.s V_1 // string",
		"ldloc.0 // V_0 int32",
		"ldarg.s label // string",
		"ret",
	})

	if k := m.Insts[4].Kind; k != KindMethod {
		t.Errorf("MemberRef call kind = %s, want method", k)
	}
	if k := m.Insts[5].Kind; k != KindField {
		t.Errorf("MemberRef ldsfld kind = %s, want field", k)
	}
	if m.Diags.Len() != 0 {
		t.Errorf("unexpected diags: %v", m.Diags.Items())
	}

	// One provider call per resolvable instruction; formatting does not
	// resolve again.
	calls := p.calls
	if calls != 14 {
		t.Errorf("provider calls = %d, want 14", calls)
	}
	_ = m.Format()
	if p.calls != calls {
		t.Errorf("Format called the provider %d more times", p.calls-calls)
	}
}

func TestResolveBestEffort(t *testing.T) {
	code := asm{}.
		op(0x72).tok(cilfmt.MakeToken(cilfmt.KindString, 0x99)).
		op(0x28).tok(cilfmt.MakeToken(cilfmt.KindMemberRef, 0x99)).
		op(0x0E, 0x07). // ldarg.s 7
		op(0x2A)

	m, err := Decode(code, newFake(), Options{})
	if err != nil {
		t.Fatalf("best effort should not fail: %v", err)
	}
	checkLines(t, body(t, m), []string{
		"ldstr ?",
		"call 0x0A000099",
		"ldarg.s ?",
		"ret",
	})
	if m.Insts[1].Kind != KindMember {
		t.Errorf("unresolved member kind = %s", m.Insts[1].Kind)
	}
	var re *ResolutionError
	if !errors.As(m.Insts[0].Err, &re) || re.Offset != 0 {
		t.Fatalf("ldstr err = %v", m.Insts[0].Err)
	}
	if !errors.Is(m.Insts[0].Err, cilfmt.ErrResolution) || !errors.Is(m.Insts[0].Err, metadata.ErrTokenRange) {
		t.Errorf("ldstr err chain = %v", m.Insts[0].Err)
	}
	if !errors.Is(m.Insts[2].Err, metadata.ErrNoParam) {
		t.Errorf("ldarg.s err = %v", m.Insts[2].Err)
	}
	if n := m.Diags.Count(cilfmt.DiagUnresolved); n != 3 {
		t.Errorf("unresolved diags = %d, want 3", n)
	}
}

func TestResolveStrict(t *testing.T) {
	code := asm{}.
		op(0x00).
		op(0x72).tok(cilfmt.MakeToken(cilfmt.KindString, 0x99)).
		op(0x72).tok(tokHello).
		op(0x2A)

	strict := Options{Options: cilfmt.Options{Mode: cilfmt.ModeStrict}}
	m, err := Decode(code, newFake(), strict)
	if !errors.Is(err, cilfmt.ErrResolution) {
		t.Fatalf("err = %v, want resolution error", err)
	}
	var re *ResolutionError
	if !errors.As(err, &re) || re.Offset != 1 {
		t.Fatalf("ResolutionError = %+v", re)
	}
	if m.Invalid || len(m.Insts) != 4 || m.Err == nil {
		t.Errorf("invalid=%v insts=%d err=%v", m.Invalid, len(m.Insts), m.Err)
	}
	if _, ok := m.Insts[2].Value(); ok {
		t.Error("instructions after the failure should stay unresolved")
	}
}

func TestDecodeNilProvider(t *testing.T) {
	code := asm{}.op(0x72).tok(tokHello).op(0x2B).i8(0).op(0x2A)
	m, err := Decode(code, nil, Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkLines(t, body(t, m), []string{"ldstr ?", "br.s IL_0007", "ret"})
	if m.Insts[0].Err != nil {
		t.Errorf("no provider means no resolution attempt, got %v", m.Insts[0].Err)
	}
}

func TestInlineTokUnknownKind(t *testing.T) {
	tok := cilfmt.Token(0x23000001) // AssemblyRef
	m, err := Decode(asm{}.op(0xD0).tok(tok), newFake(), Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	in := m.Insts[0]
	if in.Kind != KindPlain {
		t.Errorf("kind = %s, want plain", in.Kind)
	}
	if got := in.FormatOperand(m.Formatter()); got != "0x23000001" {
		t.Errorf("operand = %q", got)
	}
}

func TestVarKinds(t *testing.T) {
	code := asm{}.
		op(0xFE, 0x09).u16(1). // ldarg
		op(0xFE, 0x0C).u16(0). // ldloc
		op(0x11, 0x01).        // ldloc.s
		op(0x10, 0x02).        // starg.s
		op(0x0B)               // stloc.1

	m, err := Decode(code, newFake(), Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []Kind{KindParameter, KindVariable, KindVariable, KindParameter, KindVariable}
	for i, k := range want {
		if m.Insts[i].Kind != k {
			t.Errorf("%s kind = %s, want %s", m.Insts[i].Op.Name, m.Insts[i].Kind, k)
		}
	}
	if !m.Insts[4].Implied {
		t.Error("stloc.1 operand should be implied")
	}
	checkLines(t, body(t, m), []string{
		"ldarg n // int32",
		"ldloc V_0 // int32",
		"ldloc.s V_1 // string",
		"starg.s label // string",
		"stloc.1 // V_1 string",
	})
}
