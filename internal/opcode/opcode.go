// Package opcode describes the CIL instruction set (ECMA-335 Partition III).
package opcode

import "fmt"

// OperandKind is the encoding of the inline operand that follows an opcode.
type OperandKind uint8

const (
	InlineNone OperandKind = iota
	ShortInlineBrTarget
	InlineBrTarget
	ShortInlineI
	InlineI
	InlineI8
	ShortInlineR
	InlineR
	InlineField
	InlineMethod
	InlineType
	InlineTok
	InlineString
	InlineSig
	InlineSwitch
	ShortInlineVar
	InlineVar
)

var operandNames = [...]string{
	InlineNone:          "InlineNone",
	ShortInlineBrTarget: "ShortInlineBrTarget",
	InlineBrTarget:      "InlineBrTarget",
	ShortInlineI:        "ShortInlineI",
	InlineI:             "InlineI",
	InlineI8:            "InlineI8",
	ShortInlineR:        "ShortInlineR",
	InlineR:             "InlineR",
	InlineField:         "InlineField",
	InlineMethod:        "InlineMethod",
	InlineType:          "InlineType",
	InlineTok:           "InlineTok",
	InlineString:        "InlineString",
	InlineSig:           "InlineSig",
	InlineSwitch:        "InlineSwitch",
	ShortInlineVar:      "ShortInlineVar",
	InlineVar:           "InlineVar",
}

func (k OperandKind) String() string {
	if int(k) < len(operandNames) {
		return operandNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Size returns the fixed operand width in bytes. InlineSwitch is variable
// length and reports -1.
func (k OperandKind) Size() int {
	switch k {
	case InlineNone:
		return 0
	case ShortInlineBrTarget, ShortInlineI, ShortInlineVar:
		return 1
	case InlineVar:
		return 2
	case InlineBrTarget, InlineI, ShortInlineR, InlineField, InlineMethod,
		InlineType, InlineTok, InlineString, InlineSig:
		return 4
	case InlineI8, InlineR:
		return 8
	case InlineSwitch:
		return -1
	}
	return 0
}

// IsToken reports whether the operand is a metadata token.
func (k OperandKind) IsToken() bool {
	switch k {
	case InlineField, InlineMethod, InlineType, InlineTok, InlineString, InlineSig:
		return true
	}
	return false
}

// FlowControl describes how an instruction affects control flow.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
	FlowMeta // prefix
	FlowBreak
)

// Terminates reports whether a basic block must end after this instruction.
func (f FlowControl) Terminates() bool {
	switch f {
	case FlowBranch, FlowCondBranch, FlowReturn, FlowThrow:
		return true
	}
	return false
}

// Implied is the operand an opcode carries in its encoding (ldarg.0, stloc.3).
type Implied uint8

const (
	ImpliedNone Implied = iota
	ImpliedArg
	ImpliedLocal
)

// Prefix is the first byte of every two-byte opcode.
const Prefix = 0xFE

// OpCode describes one instruction.
type OpCode struct {
	Code    uint16 // single byte, or 0xFExx for two-byte opcodes
	Name    string
	Operand OperandKind
	Flow    FlowControl
	Implied Implied
	Index   int // implied argument or local index
}

// Size returns the encoded opcode width (1 or 2).
func (o OpCode) Size() int {
	if o.Code>>8 == Prefix {
		return 2
	}
	return 1
}

// TwoByte reports whether the opcode uses the 0xFE prefix.
func (o OpCode) TwoByte() bool { return o.Size() == 2 }

func (o OpCode) String() string { return o.Name }

// Table maps raw codes to opcode descriptors.
type Table interface {
	Lookup(code uint16) (OpCode, bool)
}
