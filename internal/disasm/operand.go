package disasm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"cilscope/internal/cilfmt"
	"cilscope/internal/metadata"
	"cilscope/internal/opcode"
)

// unresolved is rendered in place of an operand that could not be resolved.
const unresolved = "?"

// Label returns the IL_XXXX label of an offset.
func Label(offset int) string { return fmt.Sprintf("IL_%04X", offset) }

// Format renders "IL_XXXX: opcode[ operand]".
func (in *Inst) Format(f *TypeFormatter) string {
	if f == nil {
		f = NewTypeFormatter(nil)
	}
	head := Label(in.Offset) + ": " + in.Op.Name
	if in.Kind == KindPlain && in.Operand == nil {
		return head
	}
	return head + " " + in.FormatOperand(f)
}

// FormatOperand renders only the operand.
func (in *Inst) FormatOperand(f *TypeFormatter) string {
	v, ok := in.Value()
	switch in.Kind {
	case KindPlain:
		return formatPlain(in.Operand)
	case KindBranch:
		if !ok {
			return unresolved + " // " + Label(in.Targets[0])
		}
		return Label(v.Targets[0].Offset)
	case KindSwitch:
		labels := make([]string, len(in.Targets))
		for i, t := range in.Targets {
			labels[i] = Label(t)
		}
		return "(" + strings.Join(labels, ", ") + ")"
	case KindMember:
		if tok, has := in.Token(); has {
			return tok.String()
		}
		return unresolved
	}
	if !ok {
		return unresolved
	}
	switch in.Kind {
	case KindField:
		return formatField(f, v.Field, in.Op.Operand == opcode.InlineTok)
	case KindMethod:
		return formatMethod(f, v.Method, in.Op.Operand == opcode.InlineTok)
	case KindType:
		return f.Format(v.Type, false)
	case KindString:
		return QuoteString(v.Str)
	case KindSignature:
		return v.Signature.Format(f)
	case KindVariable:
		if v.Local == nil {
			return unresolved
		}
		typ := f.Format(v.Local.Type, false)
		if in.Implied {
			return fmt.Sprintf("// V_%d %s", v.Local.Index, typ)
		}
		return fmt.Sprintf("V_%d // %s", v.Local.Index, typ)
	case KindParameter:
		if v.Param == nil {
			return unresolved
		}
		typ := f.Format(v.Param.Type, false)
		if in.Implied {
			return fmt.Sprintf("// %s %s", v.Param.Name, typ)
		}
		return fmt.Sprintf("%s // %s", v.Param.Name, typ)
	}
	return unresolved
}

func formatPlain(op any) string {
	switch v := op.(type) {
	case nil:
		return ""
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case cilfmt.Token:
		return v.String()
	}
	return fmt.Sprint(op)
}

// formatField renders "[field ]Type Declaring::Name".
func formatField(f *TypeFormatter, fd *metadata.Field, token bool) string {
	if fd == nil {
		return unresolved
	}
	var b strings.Builder
	if token {
		b.WriteString("field ")
	}
	f.write(&b, fd.Type, false)
	b.WriteByte(' ')
	if fd.Declaring != nil {
		f.write(&b, fd.Declaring, false)
		b.WriteString("::")
	}
	b.WriteString(fd.Name)
	return b.String()
}

// formatMethod renders "[method ][instance ][vararg ]Ret Declaring::Name<Args>(Params)".
func formatMethod(f *TypeFormatter, m *metadata.Method, token bool) string {
	if m == nil || m.Sig == nil {
		return unresolved
	}
	var b strings.Builder
	if token {
		b.WriteString("method ")
	}
	writeConventions(&b, m.Sig)
	f.write(&b, m.Sig.Return, true)
	b.WriteByte(' ')
	if m.Declaring != nil {
		f.write(&b, m.Declaring, false)
		b.WriteString("::")
	}
	b.WriteString(m.Name)
	if len(m.GenericArgs) > 0 {
		b.WriteByte('<')
		b.WriteString(f.FormatList(m.GenericArgs, true))
		b.WriteByte('>')
	}
	b.WriteByte('(')
	writeParams(&b, f, m.Sig.Params, m.Sig.VarArgs)
	b.WriteByte(')')
	return b.String()
}

// QuoteString renders s as an ILASM string literal, or as
// bytearray(XX XX ...) of its UTF-16LE encoding when s holds a character
// ILASM cannot express in a literal.
func QuoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\v':
			b.WriteString(`\v`)
		default:
			switch {
			case r <= 0xFFFF && printable(r):
				b.WriteRune(r)
			case r > 0 && r < 0x20:
				fmt.Fprintf(&b, `\%03o`, r)
			default:
				return byteArray(s)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

func printable(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) ||
		unicode.In(r, unicode.Zs, unicode.Zl, unicode.Zp) || unicode.IsSymbol(r)
}

func byteArray(s string) string {
	var b strings.Builder
	b.WriteString("bytearray(")
	for i, u := range utf16.Encode([]rune(s)) {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X %02X", byte(u), byte(u>>8))
	}
	b.WriteByte(')')
	return b.String()
}
