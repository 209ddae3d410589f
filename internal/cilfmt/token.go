package cilfmt

import "fmt"

// Kind is the table (or heap) a metadata token refers to: the token's high byte.
type Kind uint8

const (
	KindModule     Kind = 0x00
	KindTypeRef    Kind = 0x01
	KindTypeDef    Kind = 0x02
	KindFieldDef   Kind = 0x04
	KindMethodDef  Kind = 0x06
	KindMemberRef  Kind = 0x0a
	KindSignature  Kind = 0x11 // StandAloneSig
	KindTypeSpec   Kind = 0x1b
	KindMethodSpec Kind = 0x2b
	KindString     Kind = 0x70 // #US heap offset
)

var kindNames = map[Kind]string{
	KindModule:     "Module",
	KindTypeRef:    "TypeRef",
	KindTypeDef:    "TypeDef",
	KindFieldDef:   "FieldDef",
	KindMethodDef:  "MethodDef",
	KindMemberRef:  "MemberRef",
	KindSignature:  "Signature",
	KindTypeSpec:   "TypeSpec",
	KindMethodSpec: "MethodSpec",
	KindString:     "String",
}

// Valid reports whether k belongs to the set of token kinds that can appear
// as an instruction operand.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(0x%02x)", uint8(k))
}

// Token is a 32-bit metadata reference: kind in the high byte, row id (or heap
// offset for strings) in the low 24 bits.
type Token uint32

// NewToken validates raw and returns it as a Token.
func NewToken(raw uint32) (Token, error) {
	t := Token(raw)
	if !t.Kind().Valid() {
		return 0, fmt.Errorf("%w: 0x%08x", ErrBadToken, raw)
	}
	return t, nil
}

// MakeToken builds a token from kind and row id. rid is truncated to 24 bits.
func MakeToken(k Kind, rid uint32) Token {
	return Token(uint32(k)<<24 | rid&0x00FFFFFF)
}

// Kind returns the token's table.
func (t Token) Kind() Kind { return Kind(t >> 24) }

// RID returns the 1-based row id (or heap offset).
func (t Token) RID() uint32 { return uint32(t) & 0x00FFFFFF }

// IsNil reports whether the token has a zero row id.
func (t Token) IsNil() bool { return t.RID() == 0 }

func (t Token) String() string { return fmt.Sprintf("0x%08X", uint32(t)) }
