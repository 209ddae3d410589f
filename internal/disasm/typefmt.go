package disasm

import (
	"strconv"
	"strings"

	"cilscope/internal/metadata"
)

// DefaultPrimitives returns the ILASM keyword for every built-in type.
func DefaultPrimitives() map[metadata.ElementType]string {
	return map[metadata.ElementType]string{
		metadata.ElemBoolean:    "bool",
		metadata.ElemChar:       "char",
		metadata.ElemR4:         "float32",
		metadata.ElemR8:         "float64",
		metadata.ElemI1:         "int8",
		metadata.ElemI2:         "int16",
		metadata.ElemI4:         "int32",
		metadata.ElemI8:         "int64",
		metadata.ElemI:          "native int",
		metadata.ElemU:          "native uint",
		metadata.ElemObject:     "object",
		metadata.ElemString:     "string",
		metadata.ElemTypedByRef: "typedref",
		metadata.ElemU1:         "uint8",
		metadata.ElemU2:         "uint16",
		metadata.ElemU4:         "uint32",
		metadata.ElemU8:         "uint64",
		metadata.ElemVoid:       "void",
	}
}

// TypeFormatter renders types in ILASM syntax.
type TypeFormatter struct {
	Primitives map[metadata.ElementType]string
	// SameAssembly reports whether a type's assembly is the one being
	// disassembled; such types omit the [assembly] prefix. nil means every
	// type is foreign.
	SameAssembly func(asm string) bool
}

// NewTypeFormatter returns a formatter with the default primitive table
// that consults p for the home assembly. p may be nil.
func NewTypeFormatter(p metadata.Provider) *TypeFormatter {
	f := &TypeFormatter{Primitives: DefaultPrimitives()}
	if p != nil {
		f.SameAssembly = p.IsSameAssembly
	}
	return f
}

// Format renders t. With modifiers, named types are prefixed with class or
// valuetype. Generic arguments always carry modifiers.
func (f *TypeFormatter) Format(t *metadata.Type, modifiers bool) string {
	var b strings.Builder
	f.write(&b, t, modifiers)
	return b.String()
}

// FormatList renders types separated by ", ".
func (f *TypeFormatter) FormatList(ts []*metadata.Type, modifiers bool) string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteString(", ")
		}
		f.write(&b, t, modifiers)
	}
	return b.String()
}

func (f *TypeFormatter) write(b *strings.Builder, t *metadata.Type, modifiers bool) {
	if t == nil {
		b.WriteByte('?')
		return
	}
	switch t.Kind {
	case metadata.TypePrimitive:
		if s, ok := f.Primitives[t.Elem]; ok {
			b.WriteString(s)
			return
		}
		f.writeNamed(b, t, modifiers)
	case metadata.TypeNamed:
		f.writeNamed(b, t, modifiers)
	case metadata.TypeByRef:
		f.write(b, t.Of, modifiers)
		b.WriteByte('&')
	case metadata.TypePtr:
		f.write(b, t.Of, modifiers)
		b.WriteByte('*')
	case metadata.TypeSZArray:
		f.write(b, t.Of, modifiers)
		b.WriteString("[]")
	case metadata.TypeArray:
		f.write(b, t.Of, modifiers)
		b.WriteByte('[')
		if t.Rank > 1 {
			for i := 0; i < t.Rank; i++ {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString("0...")
			}
		}
		b.WriteByte(']')
	case metadata.TypeGenericInst:
		def := t.Of
		if def == nil {
			b.WriteByte('?')
			return
		}
		f.writeNamed(b, def, modifiers)
		b.WriteByte('<')
		b.WriteString(f.FormatList(t.Args, true))
		b.WriteByte('>')
	case metadata.TypeVar:
		b.WriteString("!" + strconv.Itoa(t.Index))
	case metadata.TypeMVar:
		b.WriteString("!!" + strconv.Itoa(t.Index))
	case metadata.TypeFnPtr:
		b.WriteString("method ")
		if t.Sig != nil {
			b.WriteString(formatMethodSig(f, t.Sig))
		}
	default:
		b.WriteString(t.Name)
	}
}

func (f *TypeFormatter) writeNamed(b *strings.Builder, t *metadata.Type, modifiers bool) {
	if modifiers {
		if t.ValueType {
			b.WriteString("valuetype ")
		} else {
			b.WriteString("class ")
		}
	}
	outer := t.Outermost()
	if asm := outer.Assembly; asm != "" && (f.SameAssembly == nil || !f.SameAssembly(asm)) {
		b.WriteString("[" + asm + "]")
	}
	if outer.Namespace != "" {
		b.WriteString(outer.Namespace)
		b.WriteByte('.')
	}
	b.WriteString(outer.Name)
	writeNested(b, t)
}

// writeNested appends /Inner names from just inside the outermost type down
// to t.
func writeNested(b *strings.Builder, t *metadata.Type) {
	if t.Declaring == nil {
		return
	}
	writeNested(b, t.Declaring)
	b.WriteByte('/')
	b.WriteString(t.Name)
}
