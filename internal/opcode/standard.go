package opcode

import (
	"fmt"
	"sync"
)

// StdTable is an array-backed Table.
type StdTable struct {
	one [256]*OpCode
	two [256]*OpCode
}

// Lookup returns the descriptor for code.
func (t *StdTable) Lookup(code uint16) (OpCode, bool) {
	var op *OpCode
	switch code >> 8 {
	case 0:
		op = t.one[code]
	case Prefix:
		op = t.two[code&0xFF]
	}
	if op == nil {
		return OpCode{}, false
	}
	return *op, true
}

// Len returns the number of defined opcodes.
func (t *StdTable) Len() int {
	n := 0
	for i := range t.one {
		if t.one[i] != nil {
			n++
		}
		if t.two[i] != nil {
			n++
		}
	}
	return n
}

// All returns every defined opcode, one-byte codes first.
func (t *StdTable) All() []OpCode {
	var out []OpCode
	for _, op := range t.one {
		if op != nil {
			out = append(out, *op)
		}
	}
	for _, op := range t.two {
		if op != nil {
			out = append(out, *op)
		}
	}
	return out
}

func (t *StdTable) add(op OpCode) {
	slot := &t.one[op.Code&0xFF]
	if op.TwoByte() {
		slot = &t.two[op.Code&0xFF]
	}
	if *slot != nil {
		panic(fmt.Sprintf("opcode: duplicate code 0x%04x (%s, %s)", op.Code, (*slot).Name, op.Name))
	}
	o := op
	*slot = &o
}

var (
	stdOnce  sync.Once
	stdTable *StdTable
)

// Standard returns the ECMA-335 instruction set.
func Standard() *StdTable {
	stdOnce.Do(func() {
		t := &StdTable{}
		for _, op := range standardOps {
			t.add(op)
		}
		stdTable = t
	})
	return stdTable
}

func op(code uint16, name string, operand OperandKind, flow FlowControl) OpCode {
	return OpCode{Code: code, Name: name, Operand: operand, Flow: flow}
}

func implied(code uint16, name string, kind Implied, index int) OpCode {
	return OpCode{Code: code, Name: name, Operand: InlineNone, Flow: FlowNext, Implied: kind, Index: index}
}

var standardOps = []OpCode{
	op(0x00, "nop", InlineNone, FlowNext),
	op(0x01, "break", InlineNone, FlowBreak),
	implied(0x02, "ldarg.0", ImpliedArg, 0),
	implied(0x03, "ldarg.1", ImpliedArg, 1),
	implied(0x04, "ldarg.2", ImpliedArg, 2),
	implied(0x05, "ldarg.3", ImpliedArg, 3),
	implied(0x06, "ldloc.0", ImpliedLocal, 0),
	implied(0x07, "ldloc.1", ImpliedLocal, 1),
	implied(0x08, "ldloc.2", ImpliedLocal, 2),
	implied(0x09, "ldloc.3", ImpliedLocal, 3),
	implied(0x0A, "stloc.0", ImpliedLocal, 0),
	implied(0x0B, "stloc.1", ImpliedLocal, 1),
	implied(0x0C, "stloc.2", ImpliedLocal, 2),
	implied(0x0D, "stloc.3", ImpliedLocal, 3),
	op(0x0E, "ldarg.s", ShortInlineVar, FlowNext),
	op(0x0F, "ldarga.s", ShortInlineVar, FlowNext),
	op(0x10, "starg.s", ShortInlineVar, FlowNext),
	op(0x11, "ldloc.s", ShortInlineVar, FlowNext),
	op(0x12, "ldloca.s", ShortInlineVar, FlowNext),
	op(0x13, "stloc.s", ShortInlineVar, FlowNext),
	op(0x14, "ldnull", InlineNone, FlowNext),
	op(0x15, "ldc.i4.m1", InlineNone, FlowNext),
	op(0x16, "ldc.i4.0", InlineNone, FlowNext),
	op(0x17, "ldc.i4.1", InlineNone, FlowNext),
	op(0x18, "ldc.i4.2", InlineNone, FlowNext),
	op(0x19, "ldc.i4.3", InlineNone, FlowNext),
	op(0x1A, "ldc.i4.4", InlineNone, FlowNext),
	op(0x1B, "ldc.i4.5", InlineNone, FlowNext),
	op(0x1C, "ldc.i4.6", InlineNone, FlowNext),
	op(0x1D, "ldc.i4.7", InlineNone, FlowNext),
	op(0x1E, "ldc.i4.8", InlineNone, FlowNext),
	op(0x1F, "ldc.i4.s", ShortInlineI, FlowNext),
	op(0x20, "ldc.i4", InlineI, FlowNext),
	op(0x21, "ldc.i8", InlineI8, FlowNext),
	op(0x22, "ldc.r4", ShortInlineR, FlowNext),
	op(0x23, "ldc.r8", InlineR, FlowNext),
	op(0x25, "dup", InlineNone, FlowNext),
	op(0x26, "pop", InlineNone, FlowNext),
	op(0x27, "jmp", InlineMethod, FlowCall),
	op(0x28, "call", InlineMethod, FlowCall),
	op(0x29, "calli", InlineSig, FlowCall),
	op(0x2A, "ret", InlineNone, FlowReturn),
	op(0x2B, "br.s", ShortInlineBrTarget, FlowBranch),
	op(0x2C, "brfalse.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x2D, "brtrue.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x2E, "beq.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x2F, "bge.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x30, "bgt.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x31, "ble.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x32, "blt.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x33, "bne.un.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x34, "bge.un.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x35, "bgt.un.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x36, "ble.un.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x37, "blt.un.s", ShortInlineBrTarget, FlowCondBranch),
	op(0x38, "br", InlineBrTarget, FlowBranch),
	op(0x39, "brfalse", InlineBrTarget, FlowCondBranch),
	op(0x3A, "brtrue", InlineBrTarget, FlowCondBranch),
	op(0x3B, "beq", InlineBrTarget, FlowCondBranch),
	op(0x3C, "bge", InlineBrTarget, FlowCondBranch),
	op(0x3D, "bgt", InlineBrTarget, FlowCondBranch),
	op(0x3E, "ble", InlineBrTarget, FlowCondBranch),
	op(0x3F, "blt", InlineBrTarget, FlowCondBranch),
	op(0x40, "bne.un", InlineBrTarget, FlowCondBranch),
	op(0x41, "bge.un", InlineBrTarget, FlowCondBranch),
	op(0x42, "bgt.un", InlineBrTarget, FlowCondBranch),
	op(0x43, "ble.un", InlineBrTarget, FlowCondBranch),
	op(0x44, "blt.un", InlineBrTarget, FlowCondBranch),
	op(0x45, "switch", InlineSwitch, FlowCondBranch),
	op(0x46, "ldind.i1", InlineNone, FlowNext),
	op(0x47, "ldind.u1", InlineNone, FlowNext),
	op(0x48, "ldind.i2", InlineNone, FlowNext),
	op(0x49, "ldind.u2", InlineNone, FlowNext),
	op(0x4A, "ldind.i4", InlineNone, FlowNext),
	op(0x4B, "ldind.u4", InlineNone, FlowNext),
	op(0x4C, "ldind.i8", InlineNone, FlowNext),
	op(0x4D, "ldind.i", InlineNone, FlowNext),
	op(0x4E, "ldind.r4", InlineNone, FlowNext),
	op(0x4F, "ldind.r8", InlineNone, FlowNext),
	op(0x50, "ldind.ref", InlineNone, FlowNext),
	op(0x51, "stind.ref", InlineNone, FlowNext),
	op(0x52, "stind.i1", InlineNone, FlowNext),
	op(0x53, "stind.i2", InlineNone, FlowNext),
	op(0x54, "stind.i4", InlineNone, FlowNext),
	op(0x55, "stind.i8", InlineNone, FlowNext),
	op(0x56, "stind.r4", InlineNone, FlowNext),
	op(0x57, "stind.r8", InlineNone, FlowNext),
	op(0x58, "add", InlineNone, FlowNext),
	op(0x59, "sub", InlineNone, FlowNext),
	op(0x5A, "mul", InlineNone, FlowNext),
	op(0x5B, "div", InlineNone, FlowNext),
	op(0x5C, "div.un", InlineNone, FlowNext),
	op(0x5D, "rem", InlineNone, FlowNext),
	op(0x5E, "rem.un", InlineNone, FlowNext),
	op(0x5F, "and", InlineNone, FlowNext),
	op(0x60, "or", InlineNone, FlowNext),
	op(0x61, "xor", InlineNone, FlowNext),
	op(0x62, "shl", InlineNone, FlowNext),
	op(0x63, "shr", InlineNone, FlowNext),
	op(0x64, "shr.un", InlineNone, FlowNext),
	op(0x65, "neg", InlineNone, FlowNext),
	op(0x66, "not", InlineNone, FlowNext),
	op(0x67, "conv.i1", InlineNone, FlowNext),
	op(0x68, "conv.i2", InlineNone, FlowNext),
	op(0x69, "conv.i4", InlineNone, FlowNext),
	op(0x6A, "conv.i8", InlineNone, FlowNext),
	op(0x6B, "conv.r4", InlineNone, FlowNext),
	op(0x6C, "conv.r8", InlineNone, FlowNext),
	op(0x6D, "conv.u4", InlineNone, FlowNext),
	op(0x6E, "conv.u8", InlineNone, FlowNext),
	op(0x6F, "callvirt", InlineMethod, FlowCall),
	op(0x70, "cpobj", InlineType, FlowNext),
	op(0x71, "ldobj", InlineType, FlowNext),
	op(0x72, "ldstr", InlineString, FlowNext),
	op(0x73, "newobj", InlineMethod, FlowCall),
	op(0x74, "castclass", InlineType, FlowNext),
	op(0x75, "isinst", InlineType, FlowNext),
	op(0x76, "conv.r.un", InlineNone, FlowNext),
	op(0x79, "unbox", InlineType, FlowNext),
	op(0x7A, "throw", InlineNone, FlowThrow),
	op(0x7B, "ldfld", InlineField, FlowNext),
	op(0x7C, "ldflda", InlineField, FlowNext),
	op(0x7D, "stfld", InlineField, FlowNext),
	op(0x7E, "ldsfld", InlineField, FlowNext),
	op(0x7F, "ldsflda", InlineField, FlowNext),
	op(0x80, "stsfld", InlineField, FlowNext),
	op(0x81, "stobj", InlineType, FlowNext),
	op(0x82, "conv.ovf.i1.un", InlineNone, FlowNext),
	op(0x83, "conv.ovf.i2.un", InlineNone, FlowNext),
	op(0x84, "conv.ovf.i4.un", InlineNone, FlowNext),
	op(0x85, "conv.ovf.i8.un", InlineNone, FlowNext),
	op(0x86, "conv.ovf.u1.un", InlineNone, FlowNext),
	op(0x87, "conv.ovf.u2.un", InlineNone, FlowNext),
	op(0x88, "conv.ovf.u4.un", InlineNone, FlowNext),
	op(0x89, "conv.ovf.u8.un", InlineNone, FlowNext),
	op(0x8A, "conv.ovf.i.un", InlineNone, FlowNext),
	op(0x8B, "conv.ovf.u.un", InlineNone, FlowNext),
	op(0x8C, "box", InlineType, FlowNext),
	op(0x8D, "newarr", InlineType, FlowNext),
	op(0x8E, "ldlen", InlineNone, FlowNext),
	op(0x8F, "ldelema", InlineType, FlowNext),
	op(0x90, "ldelem.i1", InlineNone, FlowNext),
	op(0x91, "ldelem.u1", InlineNone, FlowNext),
	op(0x92, "ldelem.i2", InlineNone, FlowNext),
	op(0x93, "ldelem.u2", InlineNone, FlowNext),
	op(0x94, "ldelem.i4", InlineNone, FlowNext),
	op(0x95, "ldelem.u4", InlineNone, FlowNext),
	op(0x96, "ldelem.i8", InlineNone, FlowNext),
	op(0x97, "ldelem.i", InlineNone, FlowNext),
	op(0x98, "ldelem.r4", InlineNone, FlowNext),
	op(0x99, "ldelem.r8", InlineNone, FlowNext),
	op(0x9A, "ldelem.ref", InlineNone, FlowNext),
	op(0x9B, "stelem.i", InlineNone, FlowNext),
	op(0x9C, "stelem.i1", InlineNone, FlowNext),
	op(0x9D, "stelem.i2", InlineNone, FlowNext),
	op(0x9E, "stelem.i4", InlineNone, FlowNext),
	op(0x9F, "stelem.i8", InlineNone, FlowNext),
	op(0xA0, "stelem.r4", InlineNone, FlowNext),
	op(0xA1, "stelem.r8", InlineNone, FlowNext),
	op(0xA2, "stelem.ref", InlineNone, FlowNext),
	op(0xA3, "ldelem", InlineType, FlowNext),
	op(0xA4, "stelem", InlineType, FlowNext),
	op(0xA5, "unbox.any", InlineType, FlowNext),
	op(0xB3, "conv.ovf.i1", InlineNone, FlowNext),
	op(0xB4, "conv.ovf.u1", InlineNone, FlowNext),
	op(0xB5, "conv.ovf.i2", InlineNone, FlowNext),
	op(0xB6, "conv.ovf.u2", InlineNone, FlowNext),
	op(0xB7, "conv.ovf.i4", InlineNone, FlowNext),
	op(0xB8, "conv.ovf.u4", InlineNone, FlowNext),
	op(0xB9, "conv.ovf.i8", InlineNone, FlowNext),
	op(0xBA, "conv.ovf.u8", InlineNone, FlowNext),
	op(0xC2, "refanyval", InlineType, FlowNext),
	op(0xC3, "ckfinite", InlineNone, FlowNext),
	op(0xC6, "mkrefany", InlineType, FlowNext),
	op(0xD0, "ldtoken", InlineTok, FlowNext),
	op(0xD1, "conv.u2", InlineNone, FlowNext),
	op(0xD2, "conv.u1", InlineNone, FlowNext),
	op(0xD3, "conv.i", InlineNone, FlowNext),
	op(0xD4, "conv.ovf.i", InlineNone, FlowNext),
	op(0xD5, "conv.ovf.u", InlineNone, FlowNext),
	op(0xD6, "add.ovf", InlineNone, FlowNext),
	op(0xD7, "add.ovf.un", InlineNone, FlowNext),
	op(0xD8, "mul.ovf", InlineNone, FlowNext),
	op(0xD9, "mul.ovf.un", InlineNone, FlowNext),
	op(0xDA, "sub.ovf", InlineNone, FlowNext),
	op(0xDB, "sub.ovf.un", InlineNone, FlowNext),
	op(0xDC, "endfinally", InlineNone, FlowReturn),
	op(0xDD, "leave", InlineBrTarget, FlowBranch),
	op(0xDE, "leave.s", ShortInlineBrTarget, FlowBranch),
	op(0xDF, "stind.i", InlineNone, FlowNext),
	op(0xE0, "conv.u", InlineNone, FlowNext),

	op(0xFE00, "arglist", InlineNone, FlowNext),
	op(0xFE01, "ceq", InlineNone, FlowNext),
	op(0xFE02, "cgt", InlineNone, FlowNext),
	op(0xFE03, "cgt.un", InlineNone, FlowNext),
	op(0xFE04, "clt", InlineNone, FlowNext),
	op(0xFE05, "clt.un", InlineNone, FlowNext),
	op(0xFE06, "ldftn", InlineMethod, FlowNext),
	op(0xFE07, "ldvirtftn", InlineMethod, FlowNext),
	op(0xFE09, "ldarg", InlineVar, FlowNext),
	op(0xFE0A, "ldarga", InlineVar, FlowNext),
	op(0xFE0B, "starg", InlineVar, FlowNext),
	op(0xFE0C, "ldloc", InlineVar, FlowNext),
	op(0xFE0D, "ldloca", InlineVar, FlowNext),
	op(0xFE0E, "stloc", InlineVar, FlowNext),
	op(0xFE0F, "localloc", InlineNone, FlowNext),
	op(0xFE11, "endfilter", InlineNone, FlowReturn),
	op(0xFE12, "unaligned.", ShortInlineI, FlowMeta),
	op(0xFE13, "volatile.", InlineNone, FlowMeta),
	op(0xFE14, "tail.", InlineNone, FlowMeta),
	op(0xFE15, "initobj", InlineType, FlowNext),
	op(0xFE16, "constrained.", InlineType, FlowMeta),
	op(0xFE17, "cpblk", InlineNone, FlowNext),
	op(0xFE18, "initblk", InlineNone, FlowNext),
	op(0xFE19, "no.", ShortInlineI, FlowMeta),
	op(0xFE1A, "rethrow", InlineNone, FlowThrow),
	op(0xFE1C, "sizeof", InlineType, FlowNext),
	op(0xFE1D, "refanytype", InlineNone, FlowNext),
	op(0xFE1E, "readonly.", InlineNone, FlowMeta),
}
