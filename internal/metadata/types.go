// Package metadata models ECMA-335 metadata entities and reads them from PE
// images. The disassembler and the graph builder consume the model through the
// Provider interface and never touch the binary format directly.
package metadata

import (
	"strconv"
	"strings"

	"cilscope/internal/cilfmt"
)

// ElementType is a signature element tag (ECMA-335 II.23.1.16).
type ElementType uint8

const (
	ElemEnd         ElementType = 0x00
	ElemVoid        ElementType = 0x01
	ElemBoolean     ElementType = 0x02
	ElemChar        ElementType = 0x03
	ElemI1          ElementType = 0x04
	ElemU1          ElementType = 0x05
	ElemI2          ElementType = 0x06
	ElemU2          ElementType = 0x07
	ElemI4          ElementType = 0x08
	ElemU4          ElementType = 0x09
	ElemI8          ElementType = 0x0a
	ElemU8          ElementType = 0x0b
	ElemR4          ElementType = 0x0c
	ElemR8          ElementType = 0x0d
	ElemString      ElementType = 0x0e
	ElemPtr         ElementType = 0x0f
	ElemByRef       ElementType = 0x10
	ElemValueType   ElementType = 0x11
	ElemClass       ElementType = 0x12
	ElemVar         ElementType = 0x13
	ElemArray       ElementType = 0x14
	ElemGenericInst ElementType = 0x15
	ElemTypedByRef  ElementType = 0x16
	ElemI           ElementType = 0x18
	ElemU           ElementType = 0x19
	ElemFnPtr       ElementType = 0x1b
	ElemObject      ElementType = 0x1c
	ElemSZArray     ElementType = 0x1d
	ElemMVar        ElementType = 0x1e
	ElemCModReqd    ElementType = 0x1f
	ElemCModOpt     ElementType = 0x20
	ElemInternal    ElementType = 0x21
	ElemSentinel    ElementType = 0x41
	ElemPinned      ElementType = 0x45
)

// IsPrimitive reports whether e names a built-in type with no further payload.
func (e ElementType) IsPrimitive() bool {
	switch e {
	case ElemVoid, ElemBoolean, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2, ElemI4, ElemU4,
		ElemI8, ElemU8, ElemR4, ElemR8, ElemString, ElemTypedByRef, ElemI, ElemU, ElemObject:
		return true
	}
	return false
}

// systemPrimitives maps System.* type names to their element tags. A TypeRef or
// TypeDef that names one of these resolves to the primitive.
var systemPrimitives = map[string]ElementType{
	"Void":           ElemVoid,
	"Boolean":        ElemBoolean,
	"Char":           ElemChar,
	"SByte":          ElemI1,
	"Byte":           ElemU1,
	"Int16":          ElemI2,
	"UInt16":         ElemU2,
	"Int32":          ElemI4,
	"UInt32":         ElemU4,
	"Int64":          ElemI8,
	"UInt64":         ElemU8,
	"Single":         ElemR4,
	"Double":         ElemR8,
	"String":         ElemString,
	"TypedReference": ElemTypedByRef,
	"IntPtr":         ElemI,
	"UIntPtr":        ElemU,
	"Object":         ElemObject,
}

// TypeKind discriminates Type.
type TypeKind uint8

const (
	TypePrimitive TypeKind = iota
	TypeNamed              // TypeDef or TypeRef
	TypeSZArray
	TypeArray
	TypeByRef
	TypePtr
	TypeGenericInst
	TypeVar  // generic parameter of the enclosing type
	TypeMVar // generic parameter of the method
	TypeFnPtr
)

// Type is a resolved type reference. Types returned by a Module are shared and
// must not be mutated by callers.
type Type struct {
	Kind      TypeKind
	Elem      ElementType // primitive tag when Kind == TypePrimitive
	Namespace string
	Name      string
	Assembly  string // short name of the defining assembly; "" for primitives
	Declaring *Type  // enclosing type of a nested type
	ValueType bool
	Token     cilfmt.Token

	Of    *Type   // element, pointee, referent, or generic definition
	Rank  int     // TypeArray only
	Args  []*Type // TypeGenericInst only
	Index int     // TypeVar/TypeMVar
	Sig   *MethodSig
}

// Primitive returns the shared Type for a primitive element tag.
func Primitive(e ElementType) *Type {
	if t, ok := primitiveTypes[e]; ok {
		return t
	}
	return nil
}

var primitiveTypes = func() map[ElementType]*Type {
	m := make(map[ElementType]*Type)
	for name, e := range systemPrimitives {
		m[e] = &Type{
			Kind:      TypePrimitive,
			Elem:      e,
			Namespace: "System",
			Name:      name,
			ValueType: e != ElemString && e != ElemObject,
		}
	}
	return m
}()

// IsPrimitive reports whether t is a built-in type.
func (t *Type) IsPrimitive() bool { return t != nil && t.Kind == TypePrimitive }

// IsNested reports whether t is declared inside another type.
func (t *Type) IsNested() bool { return t != nil && t.Declaring != nil }

// IsGeneric reports whether t is an instantiated generic type.
func (t *Type) IsGeneric() bool { return t != nil && t.Kind == TypeGenericInst }

// Outermost returns the top-level type that (transitively) declares t.
func (t *Type) Outermost() *Type {
	for t.Declaring != nil {
		t = t.Declaring
	}
	return t
}

// FullName returns the reflection-style name: Namespace.Name, with nested
// types joined by '+'. Constructed types append their markers.
func (t *Type) FullName() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypePrimitive, TypeNamed:
		if t.Declaring != nil {
			return t.Declaring.FullName() + "+" + t.Name
		}
		if t.Namespace == "" {
			return t.Name
		}
		return t.Namespace + "." + t.Name
	case TypeSZArray:
		return t.Of.FullName() + "[]"
	case TypeArray:
		return t.Of.FullName() + "[" + strings.Repeat(",", max(t.Rank-1, 0)) + "]"
	case TypeByRef:
		return t.Of.FullName() + "&"
	case TypePtr:
		return t.Of.FullName() + "*"
	case TypeGenericInst:
		var b strings.Builder
		b.WriteString(t.Of.FullName())
		b.WriteByte('[')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a.FullName())
		}
		b.WriteByte(']')
		return b.String()
	case TypeVar:
		return "!" + strconv.Itoa(t.Index)
	case TypeMVar:
		return "!!" + strconv.Itoa(t.Index)
	case TypeFnPtr:
		return "method"
	}
	return t.Name
}

func (t *Type) String() string { return t.FullName() }

// withValueType returns t, or a copy of t carrying the given value-type flag.
func (t *Type) withValueType(vt bool) *Type {
	if t.Kind != TypeNamed || t.ValueType == vt {
		return t
	}
	c := *t
	c.ValueType = vt
	return &c
}

// CallConv is the calling-convention nibble of a signature's first byte.
type CallConv uint8

const (
	ConvDefault      CallConv = 0x0
	ConvC            CallConv = 0x1
	ConvStdCall      CallConv = 0x2
	ConvThisCall     CallConv = 0x3
	ConvFastCall     CallConv = 0x4
	ConvVarArg       CallConv = 0x5
	ConvField        CallConv = 0x6
	ConvLocalSig     CallConv = 0x7
	ConvProperty     CallConv = 0x8
	ConvUnmanaged    CallConv = 0x9
	ConvGenericInst  CallConv = 0xa
	ConvNativeVarArg CallConv = 0xb
)

// Signature header flags.
const (
	SigGeneric      = 0x10
	SigHasThis      = 0x20
	SigExplicitThis = 0x40
)

// IsUnmanaged reports whether c is a native calling convention.
func (c CallConv) IsUnmanaged() bool {
	switch c {
	case ConvC, ConvStdCall, ConvThisCall, ConvFastCall, ConvUnmanaged:
		return true
	}
	return false
}

func (c CallConv) String() string {
	switch c {
	case ConvDefault:
		return "default"
	case ConvC:
		return "cdecl"
	case ConvStdCall:
		return "stdcall"
	case ConvThisCall:
		return "thiscall"
	case ConvFastCall:
		return "fastcall"
	case ConvVarArg:
		return "vararg"
	case ConvField:
		return "field"
	case ConvLocalSig:
		return "localsig"
	case ConvProperty:
		return "property"
	case ConvUnmanaged:
		return "winapi"
	case ConvGenericInst:
		return "genericinst"
	case ConvNativeVarArg:
		return "nativevararg"
	}
	return "conv(" + strconv.Itoa(int(c)) + ")"
}

// MethodSig is a decoded method signature.
type MethodSig struct {
	Conv          CallConv
	HasThis       bool
	ExplicitThis  bool
	GenericParams int
	Return        *Type
	Params        []*Type // parameters before the sentinel
	VarArgs       []*Type // parameters after the sentinel
}

// ParamCount returns the total number of declared parameters.
func (s *MethodSig) ParamCount() int { return len(s.Params) + len(s.VarArgs) }

// MemberKind discriminates Member.
type MemberKind uint8

const (
	MemberType MemberKind = iota
	MemberMethod
	MemberField
)

// Member is the result of resolving a token whose table does not determine
// the entity class (MemberRef, or ldtoken operands).
type Member interface {
	MemberKind() MemberKind
}

func (*Type) MemberKind() MemberKind   { return MemberType }
func (*Method) MemberKind() MemberKind { return MemberMethod }
func (*Field) MemberKind() MemberKind  { return MemberField }

// Field access and attribute flags (II.23.1.5).
const (
	FieldAccessMask = 0x0007
	FieldPublic     = 0x0006
	FieldStatic     = 0x0010
)

// Field is a field definition or reference.
type Field struct {
	Token     cilfmt.Token
	Name      string
	Type      *Type
	Declaring *Type
	Flags     uint16
}

func (f *Field) IsStatic() bool { return f.Flags&FieldStatic != 0 }
func (f *Field) IsPublic() bool { return f.Flags&FieldAccessMask == FieldPublic }

// Method access and attribute flags (II.23.1.10).
const (
	MethodAccessMask  = 0x0007
	MethodPublic      = 0x0006
	MethodStatic      = 0x0010
	MethodVirtual     = 0x0040
	MethodAbstract    = 0x0400
	MethodSpecialName = 0x0800
)

// Method is a method definition, reference, or generic instantiation.
type Method struct {
	Token         cilfmt.Token
	Name          string
	Declaring     *Type
	Sig           *MethodSig
	Flags         uint16
	ImplFlags     uint16
	RVA           uint32
	ParamNames    []string // by parameter position, "" when unnamed
	GenericParams []string
	GenericArgs   []*Type // set for MethodSpec instantiations
}

func (m *Method) IsStatic() bool   { return m.Flags&MethodStatic != 0 }
func (m *Method) IsPublic() bool   { return m.Flags&MethodAccessMask == MethodPublic }
func (m *Method) IsAbstract() bool { return m.Flags&MethodAbstract != 0 }
func (m *Method) HasBody() bool    { return m.RVA != 0 }

// FullName returns Declaring::Name using reflection-style type names.
func (m *Method) FullName() string {
	if m.Declaring == nil {
		return m.Name
	}
	return m.Declaring.FullName() + "::" + m.Name
}

// Local is a local variable slot of a method body.
type Local struct {
	Index  int
	Type   *Type
	Pinned bool
}

// Param is an argument slot. Index is the raw ldarg operand; for instance
// methods slot 0 is the implicit this.
type Param struct {
	Index  int
	Name   string
	Type   *Type
	IsThis bool
}

// Property is a property declared on a type.
type Property struct {
	Name      string
	Type      *Type
	Declaring *Type
	Static    bool
	Public    bool
}

// Event is an event declared on a type.
type Event struct {
	Name      string
	Type      *Type
	Declaring *Type
	Static    bool
	Public    bool
}

// Type attribute flags (II.23.1.15).
const (
	TypeVisibilityMask = 0x00000007
	TypePublic         = 0x00000001
	TypeNestedPublic   = 0x00000002
	TypeInterface      = 0x00000020
	TypeAbstract       = 0x00000080
	TypeSealed         = 0x00000100
	TypeSpecialName    = 0x00000400
	TypeRTSpecialName  = 0x00000800
)

// TypeDef is a type defined in a loaded module, with its members.
type TypeDef struct {
	Token             cilfmt.Token
	Type              *Type
	Flags             uint32
	Base              *Type
	Interfaces        []*Type
	GenericParams     []string
	CompilerGenerated bool // the type or an enclosing type carries a generated-code attribute
	Fields            []*Field
	Methods           []*Method
	Properties        []*Property
	Events            []*Event
}

func (d *TypeDef) Name() string      { return d.Type.Name }
func (d *TypeDef) Namespace() string { return d.Type.Namespace }
func (d *TypeDef) FullName() string  { return d.Type.FullName() }
func (d *TypeDef) Assembly() string  { return d.Type.Assembly }
func (d *TypeDef) IsInterface() bool { return d.Flags&TypeInterface != 0 }
func (d *TypeDef) IsNested() bool    { return d.Type.Declaring != nil }
func (d *TypeDef) IsGeneric() bool   { return len(d.GenericParams) > 0 }

// IsPublic reports whether the type is visible outside its assembly (public,
// or nested public).
func (d *TypeDef) IsPublic() bool {
	v := d.Flags & TypeVisibilityMask
	return v == TypePublic || v == TypeNestedPublic
}

// Version is a four-part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

func (v Version) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." +
		strconv.Itoa(int(v.Build)) + "." + strconv.Itoa(int(v.Revision))
}

// AssemblyRef names a referenced assembly.
type AssemblyRef struct {
	Name           string
	Version        Version
	Culture        string
	PublicKeyToken []byte
}

func (r AssemblyRef) String() string {
	return r.Name + ", Version=" + r.Version.String()
}
