package cilfmt

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Stream reads little-endian CIL and metadata encodings from a byte slice.
// A failed read leaves the position unchanged.
type Stream struct {
	data []byte
	pos  int
	end  int
}

// NewStream creates a stream over the given data.
func NewStream(data []byte) *Stream {
	return &Stream{data: data, pos: 0, end: len(data)}
}

// NewStreamAt creates a stream starting at offset within data.
func NewStreamAt(data []byte, offset int) *Stream {
	if offset > len(data) {
		offset = len(data)
	}
	if offset < 0 {
		offset = 0
	}
	return &Stream{data: data, pos: offset, end: len(data)}
}

// Position returns the current read position.
func (s *Stream) Position() int { return s.pos }

// SetPosition sets the read position, clamped to [0, len].
func (s *Stream) SetPosition(pos int) {
	if pos > s.end {
		pos = s.end
	}
	if pos < 0 {
		pos = 0
	}
	s.pos = pos
}

// Len returns the total length of the underlying data.
func (s *Stream) Len() int { return s.end }

// Remaining returns bytes left to read.
func (s *Stream) Remaining() int { return s.end - s.pos }

// Data returns the underlying buffer.
func (s *Stream) Data() []byte { return s.data[:s.end] }

func (s *Stream) need(n int) error {
	if n < 0 || s.pos+n > s.end {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrRange, n, s.pos, s.end-s.pos)
	}
	return nil
}

// PeekByte returns the next byte without consuming it.
func (s *Stream) PeekByte() (byte, error) {
	if err := s.need(1); err != nil {
		return 0, err
	}
	return s.data[s.pos], nil
}

// ReadByte reads a single byte.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.need(1); err != nil {
		return 0, err
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadInt8 reads a signed byte.
func (s *Stream) ReadInt8() (int8, error) {
	b, err := s.ReadByte()
	return int8(b), err
}

// ReadBytes reads n bytes into a new slice.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if err := s.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, s.data[s.pos:s.pos+n])
	s.pos += n
	return out, nil
}

// ReadUint16 reads a little-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	if err := s.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(s.data[s.pos:])
	s.pos += 2
	return v, nil
}

// ReadInt16 reads a little-endian int16.
func (s *Stream) ReadInt16() (int16, error) {
	v, err := s.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	if err := s.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(s.data[s.pos:])
	s.pos += 4
	return v, nil
}

// ReadInt32 reads a little-endian int32.
func (s *Stream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little-endian uint64.
func (s *Stream) ReadUint64() (uint64, error) {
	if err := s.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(s.data[s.pos:])
	s.pos += 8
	return v, nil
}

// ReadInt64 reads a little-endian int64.
func (s *Stream) ReadInt64() (int64, error) {
	v, err := s.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE-754 single.
func (s *Stream) ReadFloat32() (float32, error) {
	v, err := s.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE-754 double.
func (s *Stream) ReadFloat64() (float64, error) {
	v, err := s.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadToken reads a 4-byte metadata token and validates its kind.
func (s *Stream) ReadToken() (Token, error) {
	start := s.pos
	v, err := s.ReadUint32()
	if err != nil {
		return 0, err
	}
	t, err := NewToken(v)
	if err != nil {
		s.pos = start
		return 0, err
	}
	return t, nil
}

// ReadUintN reads a little-endian index of width 2 or 4 (metadata table columns).
func (s *Stream) ReadUintN(width int) (uint32, error) {
	switch width {
	case 2:
		v, err := s.ReadUint16()
		return uint32(v), err
	case 4:
		return s.ReadUint32()
	}
	return 0, fmt.Errorf("%w: bad index width %d", ErrStructural, width)
}

// ReadCompressedUint32 reads an ECMA-335 compressed unsigned integer:
//
//	0xxxxxxx                             7 bits
//	10xxxxxx xxxxxxxx                   14 bits
//	110xxxxx xxxxxxxx xxxxxxxx xxxxxxxx 29 bits
//
// A leading 111 is rejected.
func (s *Stream) ReadCompressedUint32() (uint32, error) {
	if err := s.need(1); err != nil {
		return 0, err
	}
	v, n, err := DecodeCompressedUint32(s.data[s.pos:s.end])
	if err != nil {
		return 0, fmt.Errorf("%w (offset %d)", err, s.pos)
	}
	s.pos += n
	return v, nil
}

// ReadCompressedInt32 reads an ECMA-335 compressed signed integer. The sign
// bit is rotated into the least significant position.
func (s *Stream) ReadCompressedInt32() (int32, error) {
	if err := s.need(1); err != nil {
		return 0, err
	}
	v, n, err := DecodeCompressedUint32(s.data[s.pos:s.end])
	if err != nil {
		return 0, err
	}
	neg := v&1 != 0
	v >>= 1
	if neg {
		switch n {
		case 1:
			v |= 0xFFFFFFC0
		case 2:
			v |= 0xFFFFE000
		default:
			v |= 0xF0000000
		}
	}
	s.pos += n
	return int32(v), nil
}

// ReadCompressedTypeDefOrRef reads a compressed TypeDefOrRef coded index and
// returns the token it designates.
func (s *Stream) ReadCompressedTypeDefOrRef() (Token, error) {
	start := s.pos
	v, err := s.ReadCompressedUint32()
	if err != nil {
		return 0, err
	}
	var k Kind
	switch v & 3 {
	case 0:
		k = KindTypeDef
	case 1:
		k = KindTypeRef
	case 2:
		k = KindTypeSpec
	default:
		s.pos = start
		return 0, fmt.Errorf("%w: 0x%x at offset %d", ErrBadTypeDefOrRef, v, start)
	}
	return MakeToken(k, v>>2), nil
}

// ReadCString reads a null-terminated string.
func (s *Stream) ReadCString() (string, error) {
	start := s.pos
	for i := s.pos; i < s.end; i++ {
		if s.data[i] == 0 {
			s.pos = i + 1
			return string(s.data[start:i]), nil
		}
	}
	return "", fmt.Errorf("%w: unterminated string at offset %d", ErrRange, start)
}

// Align advances position to the next alignment boundary.
func (s *Stream) Align(alignment int) {
	if alignment <= 0 {
		return
	}
	if rem := s.pos % alignment; rem != 0 {
		s.pos += alignment - rem
	}
	if s.pos > s.end {
		s.pos = s.end
	}
}

// Skip advances the position by n bytes.
func (s *Stream) Skip(n int) error {
	if err := s.need(n); err != nil {
		return err
	}
	s.pos += n
	return nil
}

// DecodeCompressedUint32 decodes a compressed unsigned integer from the start
// of b, returning the value and the number of bytes consumed.
func DecodeCompressedUint32(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrRange
	}
	b0 := b[0]
	switch {
	case b0&0x80 == 0:
		return uint32(b0), 1, nil
	case b0&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, ErrRange
		}
		return uint32(b0&0x3F)<<8 | uint32(b[1]), 2, nil
	case b0&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, ErrRange
		}
		return uint32(b0&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, nil
	}
	return 0, 0, fmt.Errorf("%w: lead byte 0x%02x", ErrBadCompressed, b0)
}

// MaxCompressedUint32 is the largest value the compressed encoding can carry.
const MaxCompressedUint32 = 0x1FFFFFFF

// AppendCompressedUint32 appends the compressed encoding of v to b.
func AppendCompressedUint32(b []byte, v uint32) ([]byte, error) {
	switch {
	case v < 0x80:
		return append(b, byte(v)), nil
	case v < 0x4000:
		return append(b, byte(v>>8)|0x80, byte(v)), nil
	case v <= MaxCompressedUint32:
		return append(b, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v)), nil
	}
	return b, fmt.Errorf("%w: %d does not fit a compressed integer", ErrBadCompressed, v)
}

// AppendCompressedTypeDefOrRef appends t as a compressed TypeDefOrRef coded index.
func AppendCompressedTypeDefOrRef(b []byte, t Token) ([]byte, error) {
	var tag uint32
	switch t.Kind() {
	case KindTypeDef:
		tag = 0
	case KindTypeRef:
		tag = 1
	case KindTypeSpec:
		tag = 2
	default:
		return b, fmt.Errorf("%w: %s is not a type token", ErrBadTypeDefOrRef, t)
	}
	return AppendCompressedUint32(b, t.RID()<<2|tag)
}
