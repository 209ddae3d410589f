package metadata

import (
	"fmt"

	"cilscope/internal/cilfmt"
)

// maxSigDepth bounds nested type constructors in one blob.
const maxSigDepth = 64

// DecodeType reads one type from a signature blob (ECMA-335 II.23.2.12).
// Class and ValueType tags are followed by a TypeDefOrRef token that must
// resolve through r. Custom modifiers are skipped.
func DecodeType(s *cilfmt.Stream, r TypeResolver) (*Type, error) {
	return decodeType(s, r, 0)
}

func decodeType(s *cilfmt.Stream, r TypeResolver, depth int) (*Type, error) {
	if depth > maxSigDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrBadSignature, maxSigDepth)
	}
	for {
		off := s.Position()
		b, err := s.ReadByte()
		if err != nil {
			return nil, err
		}
		e := ElementType(b)
		if e.IsPrimitive() {
			return Primitive(e), nil
		}
		switch e {
		case ElemCModReqd, ElemCModOpt:
			if _, err := s.ReadCompressedTypeDefOrRef(); err != nil {
				return nil, err
			}
			continue
		case ElemPinned:
			continue
		case ElemPtr, ElemByRef, ElemSZArray:
			of, err := decodeType(s, r, depth+1)
			if err != nil {
				return nil, err
			}
			k := TypePtr
			if e == ElemByRef {
				k = TypeByRef
			} else if e == ElemSZArray {
				k = TypeSZArray
			}
			return &Type{Kind: k, Of: of}, nil
		case ElemClass, ElemValueType:
			return resolveTypeRef(s, r, e == ElemValueType)
		case ElemVar, ElemMVar:
			idx, err := s.ReadCompressedUint32()
			if err != nil {
				return nil, err
			}
			k := TypeVar
			if e == ElemMVar {
				k = TypeMVar
			}
			return &Type{Kind: k, Index: int(idx)}, nil
		case ElemArray:
			return decodeArray(s, r, depth)
		case ElemGenericInst:
			return decodeGenericInst(s, r, depth)
		case ElemFnPtr:
			sig, err := decodeMethodSig(s, r, depth+1)
			if err != nil {
				return nil, err
			}
			return &Type{Kind: TypeFnPtr, Sig: sig}, nil
		}
		return nil, fmt.Errorf("%w: unexpected element 0x%02x at offset %d", ErrBadSignature, b, off)
	}
}

func resolveTypeRef(s *cilfmt.Stream, r TypeResolver, valueType bool) (*Type, error) {
	tok, err := s.ReadCompressedTypeDefOrRef()
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("signature: no resolver for %s: %w", tok, ErrNoScope)
	}
	t, err := r.ResolveType(tok)
	if err != nil {
		return nil, fmt.Errorf("signature: resolve %s: %w", tok, err)
	}
	return t.withValueType(valueType), nil
}

func decodeArray(s *cilfmt.Stream, r TypeResolver, depth int) (*Type, error) {
	of, err := decodeType(s, r, depth+1)
	if err != nil {
		return nil, err
	}
	rank, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	// Sizes and lower bounds are read and dropped; the formatter only
	// distinguishes rank.
	nsizes, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nsizes; i++ {
		if _, err := s.ReadCompressedUint32(); err != nil {
			return nil, err
		}
	}
	nlo, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nlo; i++ {
		if _, err := s.ReadCompressedInt32(); err != nil {
			return nil, err
		}
	}
	return &Type{Kind: TypeArray, Of: of, Rank: int(rank)}, nil
}

func decodeGenericInst(s *cilfmt.Stream, r TypeResolver, depth int) (*Type, error) {
	b, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	e := ElementType(b)
	if e != ElemClass && e != ElemValueType {
		return nil, fmt.Errorf("%w: generic instantiation of element 0x%02x", ErrBadSignature, b)
	}
	def, err := resolveTypeRef(s, r, e == ElemValueType)
	if err != nil {
		return nil, err
	}
	n, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	if int(n) > s.Remaining() {
		return nil, fmt.Errorf("%w: %d generic arguments in %d bytes", ErrBadSignature, n, s.Remaining())
	}
	args := make([]*Type, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := decodeType(s, r, depth+1)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return &Type{Kind: TypeGenericInst, Of: def, Args: args, ValueType: e == ElemValueType}, nil
}

// DecodeMethodSig decodes a method signature blob (II.23.2.1-3): calling
// convention byte, parameter count, return type, parameters. A sentinel
// starts the variable-argument part of a call-site signature.
func DecodeMethodSig(blob []byte, r TypeResolver) (*MethodSig, error) {
	return decodeMethodSig(cilfmt.NewStream(blob), r, 0)
}

func decodeMethodSig(s *cilfmt.Stream, r TypeResolver, depth int) (*MethodSig, error) {
	b, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	sig := &MethodSig{
		Conv:         CallConv(b & 0x0F),
		HasThis:      b&SigHasThis != 0,
		ExplicitThis: b&SigExplicitThis != 0,
	}
	switch sig.Conv {
	case ConvField, ConvLocalSig, ConvProperty, ConvGenericInst, ConvNativeVarArg:
		return nil, fmt.Errorf("%w: %s is not a method calling convention", ErrBadSignature, sig.Conv)
	}
	if sig.Conv > ConvNativeVarArg {
		return nil, fmt.Errorf("%w: calling convention 0x%x", ErrBadSignature, b&0x0F)
	}
	if b&SigGeneric != 0 {
		n, err := s.ReadCompressedUint32()
		if err != nil {
			return nil, err
		}
		sig.GenericParams = int(n)
	}
	count, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	if int(count) > s.Remaining() {
		return nil, fmt.Errorf("%w: %d parameters in %d bytes", ErrBadSignature, count, s.Remaining())
	}
	if sig.Return, err = decodeType(s, r, depth); err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}
	varargs := false
	for i := uint32(0); i < count; i++ {
		if p, err := s.PeekByte(); err == nil && ElementType(p) == ElemSentinel {
			if varargs {
				return nil, fmt.Errorf("%w: second sentinel", ErrBadSignature)
			}
			s.ReadByte()
			varargs = true
		}
		t, err := decodeType(s, r, depth)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		if varargs {
			sig.VarArgs = append(sig.VarArgs, t)
		} else {
			sig.Params = append(sig.Params, t)
		}
	}
	return sig, nil
}

// DecodeFieldSig decodes a field signature blob (II.23.2.4).
func DecodeFieldSig(blob []byte, r TypeResolver) (*Type, error) {
	s := cilfmt.NewStream(blob)
	b, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if CallConv(b&0x0F) != ConvField {
		return nil, fmt.Errorf("%w: field signature starts with 0x%02x", ErrBadSignature, b)
	}
	return DecodeType(s, r)
}

// IsFieldSig reports whether blob is a field signature. MemberRef rows share
// one column for field and method signatures.
func IsFieldSig(blob []byte) bool {
	return len(blob) > 0 && CallConv(blob[0]&0x0F) == ConvField
}

// DecodePropertySig decodes a property signature blob (II.23.2.5) and returns
// the property type and whether it is an instance property.
func DecodePropertySig(blob []byte, r TypeResolver) (*Type, bool, error) {
	s := cilfmt.NewStream(blob)
	b, err := s.ReadByte()
	if err != nil {
		return nil, false, err
	}
	if CallConv(b&0x0F) != ConvProperty {
		return nil, false, fmt.Errorf("%w: property signature starts with 0x%02x", ErrBadSignature, b)
	}
	if _, err := s.ReadCompressedUint32(); err != nil {
		return nil, false, err
	}
	t, err := DecodeType(s, r)
	if err != nil {
		return nil, false, err
	}
	return t, b&SigHasThis != 0, nil
}

// DecodeLocalSig decodes a local variable signature blob (II.23.2.6).
func DecodeLocalSig(blob []byte, r TypeResolver) ([]*Local, error) {
	s := cilfmt.NewStream(blob)
	b, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if CallConv(b&0x0F) != ConvLocalSig {
		return nil, fmt.Errorf("%w: local signature starts with 0x%02x", ErrBadSignature, b)
	}
	n, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	if int(n) > s.Remaining() {
		return nil, fmt.Errorf("%w: %d locals in %d bytes", ErrBadSignature, n, s.Remaining())
	}
	locals := make([]*Local, 0, n)
	for i := 0; i < int(n); i++ {
		pinned := false
		for {
			p, err := s.PeekByte()
			if err != nil {
				return nil, err
			}
			if e := ElementType(p); e == ElemPinned {
				pinned = true
				s.ReadByte()
				continue
			} else if e == ElemCModOpt || e == ElemCModReqd {
				s.ReadByte()
				if _, err := s.ReadCompressedTypeDefOrRef(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		t, err := DecodeType(s, r)
		if err != nil {
			return nil, fmt.Errorf("local %d: %w", i, err)
		}
		locals = append(locals, &Local{Index: i, Type: t, Pinned: pinned})
	}
	return locals, nil
}

// DecodeMethodSpec decodes a generic method instantiation blob (II.23.2.15).
func DecodeMethodSpec(blob []byte, r TypeResolver) ([]*Type, error) {
	s := cilfmt.NewStream(blob)
	b, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if CallConv(b&0x0F) != ConvGenericInst {
		return nil, fmt.Errorf("%w: method spec starts with 0x%02x", ErrBadSignature, b)
	}
	n, err := s.ReadCompressedUint32()
	if err != nil {
		return nil, err
	}
	if int(n) > s.Remaining() {
		return nil, fmt.Errorf("%w: %d generic arguments in %d bytes", ErrBadSignature, n, s.Remaining())
	}
	args := make([]*Type, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := DecodeType(s, r)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	return args, nil
}
