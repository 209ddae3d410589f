// Package disasm decodes CIL method bodies into instruction lists, resolves
// their operands through a metadata provider, and renders ILDasm-style text.
package disasm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cilscope/internal/cilfmt"
	"cilscope/internal/metadata"
	"cilscope/internal/opcode"
)

// ErrUnknownOpcode is returned when the stream contains an undefined opcode.
var ErrUnknownOpcode = fmt.Errorf("%w: unknown opcode", cilfmt.ErrStructural)

// Options controls decoding behavior.
type Options struct {
	cilfmt.Options
	Table     opcode.Table   // nil = opcode.Standard()
	Formatter *TypeFormatter // nil = DefaultPrimitives bound to the provider
}

func (o Options) table() opcode.Table {
	if o.Table != nil {
		return o.Table
	}
	return opcode.Standard()
}

// MethodIL is the decoded instruction stream of one method body.
type MethodIL struct {
	Insts   []*Inst
	Data    []byte
	Invalid bool  // decoding failed; Insts is empty
	Err     error // why the stream is invalid, or the strict-mode resolution failure
	Diags   cilfmt.Diags

	fmt *TypeFormatter
}

// Decode walks code from offset 0, producing one Inst per opcode, then runs
// the resolution pass against p. A structural failure (unknown opcode,
// truncated operand, bad token kind, or a branch target that is not an
// instruction start) marks the whole stream invalid and is returned as the
// error together with the invalid MethodIL. Token resolution failures are
// recorded per instruction unless opts.Mode is strict. p may be nil, in
// which case only branch targets are resolved.
func Decode(code []byte, p metadata.Provider, opts Options) (*MethodIL, error) {
	il := &MethodIL{Data: code, fmt: opts.Formatter}
	if il.fmt == nil {
		il.fmt = NewTypeFormatter(p)
	}

	table := opts.table()
	maxSteps := opts.EffectiveMaxSteps()
	s := cilfmt.NewStream(code)
	var insts []*Inst
	for s.Remaining() > 0 {
		off := s.Position()
		if len(insts) >= maxSteps {
			il.Diags.Addf(uint64(off), cilfmt.DiagClamped, "stopped after %d instructions", maxSteps)
			return il.invalidate(fmt.Errorf("%w: more than %d instructions", cilfmt.ErrStructural, maxSteps))
		}
		in, err := decodeOne(s, table)
		if err != nil {
			kind := cilfmt.DiagTruncated
			if errors.Is(err, ErrUnknownOpcode) {
				kind = cilfmt.DiagUnknownOpcode
			}
			il.Diags.Add(uint64(off), kind, err.Error())
			return il.invalidate(fmt.Errorf("IL_%04X: %w", off, err))
		}
		insts = append(insts, in)
	}
	il.Insts = insts

	if err := il.resolveTargets(); err != nil {
		var te *TargetError
		if errors.As(err, &te) {
			il.Diags.Add(uint64(te.Offset), cilfmt.DiagBadTarget, err.Error())
		}
		return il.invalidate(err)
	}
	if p != nil {
		if err := il.resolveTokens(p, opts.Mode); err != nil {
			il.Err = err
			return il, err
		}
	}
	return il, nil
}

func (il *MethodIL) invalidate(err error) (*MethodIL, error) {
	il.Insts = nil
	il.Invalid = true
	il.Err = err
	return il, err
}

// decodeOne reads one opcode and its operand. On error the stream position
// is left wherever the failing read stopped; the caller discards the stream.
func decodeOne(s *cilfmt.Stream, table opcode.Table) (*Inst, error) {
	off := s.Position()
	b, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	code := uint16(b)
	if b == opcode.Prefix {
		b2, err := s.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("two-byte opcode: %w", err)
		}
		code = uint16(opcode.Prefix)<<8 | uint16(b2)
	}
	op, ok := table.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w 0x%X", ErrUnknownOpcode, code)
	}

	in := &Inst{Offset: off, Op: op}
	if err := readOperand(s, in); err != nil {
		return nil, fmt.Errorf("%s operand: %w", op.Name, err)
	}
	in.Size = s.Position() - off
	return in, nil
}

func readOperand(s *cilfmt.Stream, in *Inst) error {
	op := in.Op
	switch op.Operand {
	case opcode.InlineNone:
		switch op.Implied {
		case opcode.ImpliedArg:
			in.Kind, in.Operand, in.Implied = KindParameter, uint16(op.Index), true
		case opcode.ImpliedLocal:
			in.Kind, in.Operand, in.Implied = KindVariable, uint16(op.Index), true
		}
		return nil

	case opcode.ShortInlineBrTarget:
		d, err := s.ReadInt8()
		if err != nil {
			return err
		}
		in.Kind, in.Operand = KindBranch, d
		in.Targets = []int{s.Position() + int(d)}

	case opcode.InlineBrTarget:
		d, err := s.ReadInt32()
		if err != nil {
			return err
		}
		in.Kind, in.Operand = KindBranch, d
		in.Targets = []int{s.Position() + int(d)}

	case opcode.InlineSwitch:
		n, err := s.ReadUint32()
		if err != nil {
			return err
		}
		if uint64(n)*4 > uint64(s.Remaining()) {
			return fmt.Errorf("%w: %d switch targets in %d bytes", cilfmt.ErrRange, n, s.Remaining())
		}
		deltas := make([]int32, n)
		for i := range deltas {
			if deltas[i], err = s.ReadInt32(); err != nil {
				return err
			}
		}
		base := s.Position()
		in.Kind, in.Operand = KindSwitch, deltas
		in.Targets = make([]int, n)
		for i, d := range deltas {
			in.Targets[i] = base + int(d)
		}

	case opcode.ShortInlineI:
		if op.Name == "ldc.i4.s" {
			v, err := s.ReadInt8()
			if err != nil {
				return err
			}
			in.Operand = v
			return nil
		}
		v, err := s.ReadByte()
		if err != nil {
			return err
		}
		in.Operand = v

	case opcode.InlineI:
		v, err := s.ReadInt32()
		if err != nil {
			return err
		}
		in.Operand = v

	case opcode.InlineI8:
		v, err := s.ReadInt64()
		if err != nil {
			return err
		}
		in.Operand = v

	case opcode.ShortInlineR:
		v, err := s.ReadFloat32()
		if err != nil {
			return err
		}
		in.Operand = v

	case opcode.InlineR:
		v, err := s.ReadFloat64()
		if err != nil {
			return err
		}
		in.Operand = v

	case opcode.ShortInlineVar:
		v, err := s.ReadByte()
		if err != nil {
			return err
		}
		in.Kind, in.Operand = varKind(op), v

	case opcode.InlineVar:
		v, err := s.ReadUint16()
		if err != nil {
			return err
		}
		in.Kind, in.Operand = varKind(op), v

	case opcode.InlineTok:
		raw, err := s.ReadUint32()
		if err != nil {
			return err
		}
		tok := cilfmt.Token(raw)
		in.Kind, in.Operand = tokenKind(tok.Kind()), tok

	case opcode.InlineField, opcode.InlineMethod, opcode.InlineType, opcode.InlineString, opcode.InlineSig:
		tok, err := s.ReadToken()
		if err != nil {
			return err
		}
		in.Operand = tok
		switch op.Operand {
		case opcode.InlineField:
			in.Kind = KindField
		case opcode.InlineMethod:
			in.Kind = KindMethod
		case opcode.InlineType:
			in.Kind = KindType
		case opcode.InlineString:
			in.Kind = KindString
		case opcode.InlineSig:
			in.Kind = KindSignature
		}
		if tok.Kind() == cilfmt.KindMemberRef {
			in.Kind = KindMember
		}

	default:
		return fmt.Errorf("%w: operand kind %s", cilfmt.ErrStructural, op.Operand)
	}
	return nil
}

// varKind picks Parameter for ldarg/starg/ldarga and Variable for the local
// forms.
func varKind(op opcode.OpCode) Kind {
	if strings.Contains(op.Name, "arg") {
		return KindParameter
	}
	return KindVariable
}

// tokenKind chooses the variant for an ldtoken operand from its table.
func tokenKind(k cilfmt.Kind) Kind {
	switch k {
	case cilfmt.KindTypeDef, cilfmt.KindTypeRef, cilfmt.KindTypeSpec:
		return KindType
	case cilfmt.KindMethodDef, cilfmt.KindMethodSpec:
		return KindMethod
	case cilfmt.KindFieldDef:
		return KindField
	case cilfmt.KindSignature:
		return KindSignature
	case cilfmt.KindString:
		return KindString
	case cilfmt.KindMemberRef:
		return KindMember
	}
	return KindPlain
}

// InstAt returns the instruction starting at offset, or nil.
func (il *MethodIL) InstAt(offset int) *Inst {
	i := sort.Search(len(il.Insts), func(i int) bool { return il.Insts[i].Offset >= offset })
	if i < len(il.Insts) && il.Insts[i].Offset == offset {
		return il.Insts[i]
	}
	return nil
}

// Formatter returns the type formatter the listing is rendered with.
func (il *MethodIL) Formatter() *TypeFormatter { return il.fmt }

// Format renders the listing, one "IL_XXXX: opcode operand" line per
// instruction. Annotators are checked in order; the first non-empty result
// is appended as a comment.
func (il *MethodIL) Format(annotators ...Annotator) string {
	if il.Invalid {
		return fmt.Sprintf("// invalid method body: %v\n", il.Err)
	}
	var b strings.Builder
	for _, in := range il.Insts {
		b.WriteString(in.Format(il.fmt))
		for _, ann := range annotators {
			if s := ann(in); s != "" {
				fmt.Fprintf(&b, "  // %s", s)
				break
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (il *MethodIL) String() string { return il.Format() }
