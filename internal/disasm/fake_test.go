package disasm

import (
	"encoding/binary"
	"fmt"
	"math"

	"cilscope/internal/cilfmt"
	"cilscope/internal/metadata"
)

// fakeProvider resolves tokens from fixed maps and counts calls.
type fakeProvider struct {
	types   map[cilfmt.Token]*metadata.Type
	fields  map[cilfmt.Token]*metadata.Field
	methods map[cilfmt.Token]*metadata.Method
	members map[cilfmt.Token]metadata.Member
	strs    map[cilfmt.Token]string
	sigs    map[cilfmt.Token][]byte
	locals  []*metadata.Local
	params  []*metadata.Param
	home    string
	calls   int
}

func missing(tok cilfmt.Token) error {
	return fmt.Errorf("%w: %s", metadata.ErrTokenRange, tok)
}

func (p *fakeProvider) ResolveType(tok cilfmt.Token) (*metadata.Type, error) {
	p.calls++
	if t, ok := p.types[tok]; ok {
		return t, nil
	}
	return nil, missing(tok)
}

func (p *fakeProvider) ResolveField(tok cilfmt.Token) (*metadata.Field, error) {
	p.calls++
	if f, ok := p.fields[tok]; ok {
		return f, nil
	}
	return nil, missing(tok)
}

func (p *fakeProvider) ResolveMethod(tok cilfmt.Token) (*metadata.Method, error) {
	p.calls++
	if m, ok := p.methods[tok]; ok {
		return m, nil
	}
	return nil, missing(tok)
}

func (p *fakeProvider) ResolveMember(tok cilfmt.Token) (metadata.Member, error) {
	p.calls++
	if m, ok := p.members[tok]; ok {
		return m, nil
	}
	return nil, missing(tok)
}

func (p *fakeProvider) ResolveString(tok cilfmt.Token) (string, error) {
	p.calls++
	if s, ok := p.strs[tok]; ok {
		return s, nil
	}
	return "", missing(tok)
}

func (p *fakeProvider) ResolveSignature(tok cilfmt.Token) ([]byte, error) {
	p.calls++
	if b, ok := p.sigs[tok]; ok {
		return b, nil
	}
	return nil, missing(tok)
}

func (p *fakeProvider) ResolveLocal(i int) (*metadata.Local, error) {
	p.calls++
	if i < len(p.locals) {
		return p.locals[i], nil
	}
	return nil, metadata.ErrNoLocal
}

func (p *fakeProvider) ResolveParam(i int) (*metadata.Param, error) {
	p.calls++
	if i < len(p.params) {
		return p.params[i], nil
	}
	return nil, metadata.ErrNoParam
}

func (p *fakeProvider) IsSameAssembly(asm string) bool { return asm == p.home }

// Token fixtures.
var (
	tokConsole   = cilfmt.MakeToken(cilfmt.KindTypeRef, 1)
	tokWidget    = cilfmt.MakeToken(cilfmt.KindTypeDef, 2)
	tokCount     = cilfmt.MakeToken(cilfmt.KindFieldDef, 1)
	tokRun       = cilfmt.MakeToken(cilfmt.KindMethodDef, 1)
	tokWriteLine = cilfmt.MakeToken(cilfmt.KindMemberRef, 1)
	tokPointX    = cilfmt.MakeToken(cilfmt.KindMemberRef, 2)
	tokHello     = cilfmt.MakeToken(cilfmt.KindString, 1)
	tokSig       = cilfmt.MakeToken(cilfmt.KindSignature, 1)
)

var (
	typeConsole = &metadata.Type{Kind: metadata.TypeNamed, Namespace: "System", Name: "Console", Assembly: "mscorlib", Token: tokConsole}
	typeWidget  = &metadata.Type{Kind: metadata.TypeNamed, Namespace: "Demo", Name: "Widget", Assembly: "Lib", Token: tokWidget}
	typePoint   = &metadata.Type{Kind: metadata.TypeNamed, Namespace: "Demo", Name: "Point", Assembly: "Lib", ValueType: true}
	typeInt32   = metadata.Primitive(metadata.ElemI4)
	typeString  = metadata.Primitive(metadata.ElemString)
	typeVoid    = metadata.Primitive(metadata.ElemVoid)
)

func newFake() *fakeProvider {
	return &fakeProvider{
		home: "Lib",
		types: map[cilfmt.Token]*metadata.Type{
			tokConsole: typeConsole,
			tokWidget:  typeWidget,
		},
		fields: map[cilfmt.Token]*metadata.Field{
			tokCount: {Token: tokCount, Name: "count", Type: typeInt32, Declaring: typeWidget},
		},
		methods: map[cilfmt.Token]*metadata.Method{
			tokRun: {Token: tokRun, Name: "Run", Declaring: typeWidget, Sig: &metadata.MethodSig{
				HasThis: true, Return: typeVoid, Params: []*metadata.Type{typeInt32, typeString},
			}},
		},
		members: map[cilfmt.Token]metadata.Member{
			tokWriteLine: &metadata.Method{Token: tokWriteLine, Name: "WriteLine", Declaring: typeConsole, Sig: &metadata.MethodSig{
				Return: typeVoid, Params: []*metadata.Type{typeString},
			}},
			tokPointX: &metadata.Field{Token: tokPointX, Name: "X", Type: typeInt32, Declaring: typePoint},
		},
		strs: map[cilfmt.Token]string{tokHello: "hello"},
		sigs: map[cilfmt.Token][]byte{tokSig: {0x00, 0x01, 0x08, 0x0E}}, // int32(string)
		locals: []*metadata.Local{
			{Index: 0, Type: typeInt32},
			{Index: 1, Type: typeString},
		},
		params: []*metadata.Param{
			{Index: 0, Name: "this", Type: typeWidget, IsThis: true},
			{Index: 1, Name: "n", Type: typeInt32},
			{Index: 2, Name: "label", Type: typeString},
		},
	}
}

// asm assembles a code buffer from opcode bytes and typed operands.
type asm []byte

func (b asm) op(code ...byte) asm    { return append(b, code...) }
func (b asm) i8(v int8) asm          { return append(b, byte(v)) }
func (b asm) u16(v uint16) asm       { return binary.LittleEndian.AppendUint16(b, v) }
func (b asm) i32(v int32) asm        { return binary.LittleEndian.AppendUint32(b, uint32(v)) }
func (b asm) i64(v int64) asm        { return binary.LittleEndian.AppendUint64(b, uint64(v)) }
func (b asm) f64(v float64) asm      { return binary.LittleEndian.AppendUint64(b, math.Float64bits(v)) }
func (b asm) tok(t cilfmt.Token) asm { return binary.LittleEndian.AppendUint32(b, uint32(t)) }
func (b asm) f32(v float32) asm      { return binary.LittleEndian.AppendUint32(b, math.Float32bits(v)) }
func (b asm) sw(deltas ...int32) asm {
	b = binary.LittleEndian.AppendUint32(append(b, 0x45), uint32(len(deltas)))
	for _, d := range deltas {
		b = b.i32(d)
	}
	return b
}
