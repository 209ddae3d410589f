package metadata

import (
	"errors"
	"fmt"

	"cilscope/internal/cilfmt"
)

// ErrNoBody is returned for abstract, runtime, and P/Invoke methods.
var ErrNoBody = errors.New("metadata: method has no IL body")

// Method header formats (II.25.4).
const (
	headerTiny      = 0x2
	headerFat       = 0x3
	headerMoreSects = 0x08
	headerInitLocal = 0x10

	sectEHTable   = 0x01
	sectFatFormat = 0x40
	sectMoreSects = 0x80
)

// Exception clause kinds.
const (
	ClauseCatch   = 0x0000
	ClauseFilter  = 0x0001
	ClauseFinally = 0x0002
	ClauseFault   = 0x0004
)

// ExceptionClause is one protected region of a method body.
type ExceptionClause struct {
	Flags         uint32
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	ClassToken    cilfmt.Token // catch clauses
	FilterOffset  uint32       // filter clauses
}

// Body is a decoded method body.
type Body struct {
	MaxStack       int
	Code           []byte
	LocalVarSigTok cilfmt.Token
	InitLocals     bool
	Locals         []*Local
	LocalsErr      error
	Clauses        []ExceptionClause
}

// MethodBody reads the IL body of a MethodDef. A local signature that fails
// to decode leaves Locals nil and records the failure in LocalsErr.
func (m *Module) MethodBody(md *Method) (*Body, error) {
	if md.Token.Kind() != cilfmt.KindMethodDef || md.RVA == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBody, md.FullName())
	}
	s, err := m.img.At(md.RVA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", md.FullName(), err)
	}
	b, err := readBody(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", md.FullName(), err)
	}
	if b.LocalVarSigTok != 0 {
		b.Locals, b.LocalsErr = m.locals(b.LocalVarSigTok)
	}
	return b, nil
}

func (m *Module) locals(tok cilfmt.Token) ([]*Local, error) {
	blob, err := m.ResolveSignature(tok)
	if err != nil {
		return nil, err
	}
	return DecodeLocalSig(blob, m)
}

// readBody decodes a tiny or fat method header, the code, and any exception
// sections that follow.
func readBody(s *cilfmt.Stream) (*Body, error) {
	start := s.Position()
	first, err := s.PeekByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	switch first & 0x3 {
	case headerTiny:
		s.Skip(1)
		code, err := s.ReadBytes(int(first >> 2))
		if err != nil {
			return nil, fmt.Errorf("%w: code: %v", ErrBadBody, err)
		}
		return &Body{MaxStack: 8, Code: code}, nil
	case headerFat:
	default:
		return nil, fmt.Errorf("%w: header byte 0x%02x", ErrBadBody, first)
	}

	flags, err := s.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	maxStack, err := s.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	codeSize, err := s.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	localTok, err := s.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	hdrSize := int(flags>>12) * 4
	if hdrSize < 12 {
		return nil, fmt.Errorf("%w: fat header size %d", ErrBadBody, hdrSize)
	}
	s.SetPosition(start + hdrSize)
	code, err := s.ReadBytes(int(codeSize))
	if err != nil {
		return nil, fmt.Errorf("%w: code: %v", ErrBadBody, err)
	}
	b := &Body{
		MaxStack:       int(maxStack),
		Code:           code,
		LocalVarSigTok: cilfmt.Token(localTok),
		InitLocals:     flags&headerInitLocal != 0,
	}
	if flags&headerMoreSects != 0 {
		if b.Clauses, err = readSections(s); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func readSections(s *cilfmt.Stream) ([]ExceptionClause, error) {
	var out []ExceptionClause
	for {
		s.Align(4)
		kind, err := s.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: section: %v", ErrBadBody, err)
		}
		if kind&sectEHTable == 0 {
			return nil, fmt.Errorf("%w: section kind 0x%02x", ErrBadBody, kind)
		}
		fat := kind&sectFatFormat != 0
		var size, clauseSize int
		if fat {
			raw, err := s.ReadBytes(3)
			if err != nil {
				return nil, fmt.Errorf("%w: section: %v", ErrBadBody, err)
			}
			size = int(raw[0]) | int(raw[1])<<8 | int(raw[2])<<16
			clauseSize = 24
		} else {
			n, err := s.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("%w: section: %v", ErrBadBody, err)
			}
			if err := s.Skip(2); err != nil {
				return nil, fmt.Errorf("%w: section: %v", ErrBadBody, err)
			}
			size = int(n)
			clauseSize = 12
		}
		for i := 0; i < (size-4)/clauseSize; i++ {
			c, err := readClause(s, fat)
			if err != nil {
				return nil, fmt.Errorf("%w: clause %d: %v", ErrBadBody, i, err)
			}
			out = append(out, c)
		}
		if kind&sectMoreSects == 0 {
			return out, nil
		}
	}
}

func readClause(s *cilfmt.Stream, fat bool) (ExceptionClause, error) {
	var c ExceptionClause
	var vals [6]uint32
	widths := [6]int{2, 2, 1, 2, 1, 4}
	if fat {
		widths = [6]int{4, 4, 4, 4, 4, 4}
	}
	for i, w := range widths {
		var err error
		switch w {
		case 1:
			var b byte
			b, err = s.ReadByte()
			vals[i] = uint32(b)
		default:
			vals[i], err = s.ReadUintN(w)
		}
		if err != nil {
			return c, err
		}
	}
	c = ExceptionClause{
		Flags:         vals[0],
		TryOffset:     vals[1],
		TryLength:     vals[2],
		HandlerOffset: vals[3],
		HandlerLength: vals[4],
	}
	if c.Flags&ClauseFilter != 0 {
		c.FilterOffset = vals[5]
	} else {
		c.ClassToken = cilfmt.Token(vals[5])
	}
	return c, nil
}
