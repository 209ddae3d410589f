package metadata

import (
	"errors"
	"fmt"

	"cilscope/internal/cilfmt"
)

var (
	ErrNotPE            = errors.New("metadata: not a PE image")
	ErrNoCLIHeader      = errors.New("metadata: image has no CLI header")
	ErrBadMetadata      = fmt.Errorf("%w: malformed metadata", cilfmt.ErrStructural)
	ErrBadSignature     = fmt.Errorf("%w: malformed signature", cilfmt.ErrStructural)
	ErrBadBody          = fmt.Errorf("%w: malformed method body", cilfmt.ErrStructural)
	ErrUnsupported      = errors.New("metadata: unsupported table")
	ErrTokenRange       = fmt.Errorf("%w: token row out of range", cilfmt.ErrResolution)
	ErrWrongKind        = fmt.Errorf("%w: token kind not valid here", cilfmt.ErrResolution)
	ErrNoScope          = fmt.Errorf("%w: no method scope for locals or parameters", cilfmt.ErrResolution)
	ErrNoLocal          = fmt.Errorf("%w: local variable index out of range", cilfmt.ErrResolution)
	ErrNoParam          = fmt.Errorf("%w: parameter index out of range", cilfmt.ErrResolution)
	ErrAssemblyNotFound = errors.New("metadata: assembly not found")
)

// TypeResolver resolves the TypeDefOrRef tokens embedded in signatures.
type TypeResolver interface {
	ResolveType(tok cilfmt.Token) (*Type, error)
}

// Provider is the metadata capability the instruction decoder resolves
// operands through. Implementations return borrowed pointers; the decoder never
// mutates them.
type Provider interface {
	TypeResolver
	ResolveField(tok cilfmt.Token) (*Field, error)
	ResolveMethod(tok cilfmt.Token) (*Method, error)
	// ResolveMember resolves tokens whose kind does not pin down the entity
	// class, such as MemberRef.
	ResolveMember(tok cilfmt.Token) (Member, error)
	ResolveString(tok cilfmt.Token) (string, error)
	// ResolveSignature returns the raw stand-alone signature blob.
	ResolveSignature(tok cilfmt.Token) ([]byte, error)
	ResolveLocal(index int) (*Local, error)
	ResolveParam(index int) (*Param, error)
	// IsSameAssembly reports whether asm names the assembly that owns the
	// method being decoded.
	IsSameAssembly(asm string) bool
}
