package disasm

import (
	"strings"

	"cilscope/internal/metadata"
)

// Signature is a decoded stand-alone method signature, as used by calli.
type Signature struct {
	Conv         metadata.CallConv
	HasThis      bool
	ExplicitThis bool
	Return       *metadata.Type
	Required     []*metadata.Type
	Optional     []*metadata.Type // after the vararg sentinel
}

// DecodeSignature decodes a method signature blob. Field, local, property
// and generic-instantiation blobs are rejected with an error wrapping
// cilfmt.ErrStructural.
func DecodeSignature(blob []byte, r metadata.TypeResolver) (*Signature, error) {
	ms, err := metadata.DecodeMethodSig(blob, r)
	if err != nil {
		return nil, err
	}
	return &Signature{
		Conv:         ms.Conv,
		HasThis:      ms.HasThis,
		ExplicitThis: ms.ExplicitThis,
		Return:       ms.Return,
		Required:     ms.Params,
		Optional:     ms.VarArgs,
	}, nil
}

// Format renders the signature with f.
func (s *Signature) Format(f *TypeFormatter) string {
	return formatMethodSig(f, &metadata.MethodSig{
		Conv:         s.Conv,
		HasThis:      s.HasThis,
		ExplicitThis: s.ExplicitThis,
		Return:       s.Return,
		Params:       s.Required,
		VarArgs:      s.Optional,
	})
}

// String renders the signature with the default primitive table; every
// named type is qualified with its assembly.
func (s *Signature) String() string {
	return s.Format(&TypeFormatter{Primitives: DefaultPrimitives()})
}

func formatMethodSig(f *TypeFormatter, sig *metadata.MethodSig) string {
	var b strings.Builder
	if sig.Conv.IsUnmanaged() {
		b.WriteString("unmanaged ")
		b.WriteString(sig.Conv.String())
		b.WriteByte(' ')
	} else {
		writeConventions(&b, sig)
	}
	f.write(&b, sig.Return, true)
	b.WriteByte('(')
	writeParams(&b, f, sig.Params, sig.VarArgs)
	b.WriteByte(')')
	return b.String()
}

func writeConventions(b *strings.Builder, sig *metadata.MethodSig) {
	if sig.HasThis {
		b.WriteString("instance ")
	}
	if sig.Conv == metadata.ConvVarArg {
		b.WriteString("vararg ")
	}
}

// writeParams writes required parameters, then "..." and the optional ones
// when a sentinel was present.
func writeParams(b *strings.Builder, f *TypeFormatter, required, optional []*metadata.Type) {
	b.WriteString(f.FormatList(required, true))
	if len(optional) == 0 {
		return
	}
	if len(required) > 0 {
		b.WriteString(", ")
	}
	b.WriteString("..., ")
	b.WriteString(f.FormatList(optional, true))
}

// FormatMethodSig renders a method definition's signature in the same form
// as a calli operand. A nil sig renders as "".
func FormatMethodSig(f *TypeFormatter, sig *metadata.MethodSig) string {
	if sig == nil {
		return ""
	}
	if f == nil {
		f = NewTypeFormatter(nil)
	}
	return formatMethodSig(f, sig)
}
