package disasm

import (
	"cilscope/internal/cilfmt"
	"cilscope/internal/metadata"
	"cilscope/internal/opcode"
)

// Kind is the variant of a decoded instruction. Member is provisional: the
// resolution pass rewrites it to Method, Field or Type once the provider
// reports what the token denotes.
type Kind uint8

const (
	KindPlain Kind = iota
	KindBranch
	KindSwitch
	KindField
	KindMethod
	KindType
	KindMember
	KindString
	KindSignature
	KindVariable
	KindParameter
)

var kindNames = [...]string{
	KindPlain:     "plain",
	KindBranch:    "branch",
	KindSwitch:    "switch",
	KindField:     "field",
	KindMethod:    "method",
	KindType:      "type",
	KindMember:    "member",
	KindString:    "string",
	KindSignature: "signature",
	KindVariable:  "variable",
	KindParameter: "parameter",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is the resolved operand of an instruction. Which field is set
// follows the instruction's Kind.
type Value struct {
	Field     *metadata.Field
	Method    *metadata.Method
	Type      *metadata.Type
	Str       string
	Signature *Signature
	Local     *metadata.Local
	Param     *metadata.Param
	Targets   []*Inst // Branch, Switch
}

// Inst is one decoded CIL instruction.
type Inst struct {
	Offset   int
	Op       opcode.OpCode
	Kind     Kind
	Operand  any   // int8, uint8, uint16, int32, int64, float32, float64, cilfmt.Token, []int32, or nil
	Size     int   // opcode plus operand bytes
	Targets  []int // absolute branch targets
	IsTarget bool  // some branch or switch lands here
	Implied  bool  // the operand is encoded in the opcode (ldarg.1, stloc.0)
	Err      error // resolution failure, if any

	value    Value
	resolved bool
}

// Value returns the resolved operand and whether resolution succeeded.
func (in *Inst) Value() (Value, bool) { return in.value, in.resolved }

// setValue records the resolved operand. It is called at most once.
func (in *Inst) setValue(v Value) {
	in.value = v
	in.resolved = true
}

// Token returns the metadata token operand, if the instruction has one.
func (in *Inst) Token() (cilfmt.Token, bool) {
	t, ok := in.Operand.(cilfmt.Token)
	return t, ok
}

// Index returns the local or argument index of a Variable or Parameter
// instruction.
func (in *Inst) Index() (int, bool) {
	switch v := in.Operand.(type) {
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	}
	return 0, false
}

// End returns the offset of the next instruction.
func (in *Inst) End() int { return in.Offset + in.Size }
