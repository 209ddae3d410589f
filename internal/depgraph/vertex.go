package depgraph

import (
	"strings"

	"cilscope/internal/metadata"
)

// Assembly is a loaded assembly as seen by the builder.
type Assembly interface {
	Name() string
	References() []metadata.AssemblyRef
	Types() ([]*metadata.TypeDef, error)
}

// Loader opens referenced assemblies by short name.
type Loader interface {
	Load(name string) (Assembly, error)
}

// DirLoader adapts a metadata.DirLoader to Loader.
type DirLoader struct {
	*metadata.DirLoader
}

func (l DirLoader) Load(name string) (Assembly, error) {
	m, err := l.DirLoader.Load(name)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AssemblyVertex is one assembly, loaded or not.
type AssemblyVertex struct {
	Ref      metadata.AssemblyRef
	Assembly Assembly // nil until loaded
	Excluded bool     // matched an excluded prefix; never loaded
	LoadErr  error
}

func (v *AssemblyVertex) Key() string    { return v.Ref.Name }
func (v *AssemblyVertex) Name() string   { return v.Ref.Name }
func (v *AssemblyVertex) IsLoaded() bool { return v.Assembly != nil }

// Member is a public member of a class whose type passed the relevance
// policy. Dependencies holds the keys of the types it pulls in.
type Member struct {
	Name         string
	Static       bool
	Type         string
	Dependencies []string
}

// ClassVertex is a non-interface type definition.
type ClassVertex struct {
	key      string
	Assembly string
	Def      *metadata.TypeDef

	Fields     []Member
	Properties []Member
	Methods    []Member
	Events     []Member
}

func (v *ClassVertex) Key() string { return v.key }

// Members returns every descriptor in field, property, method, event order.
func (v *ClassVertex) Members() []Member {
	out := make([]Member, 0, len(v.Fields)+len(v.Properties)+len(v.Methods)+len(v.Events))
	out = append(out, v.Fields...)
	out = append(out, v.Properties...)
	out = append(out, v.Methods...)
	return append(out, v.Events...)
}

// InterfaceVertex is an interface type definition.
type InterfaceVertex struct {
	key      string
	Assembly string
	Def      *metadata.TypeDef
}

func (v *InterfaceVertex) Key() string { return v.key }

const specialChars = "<!>+"

// TypeKey returns the vertex key for a named type: assembly.Name for generic
// definitions, the full name otherwise. ok is false for types that have no
// safe name.
func TypeKey(t *metadata.Type) (key string, ok bool) {
	for t != nil && t.Kind == metadata.TypeGenericInst {
		t = t.Of
	}
	if t == nil || t.Name == "" {
		return "", false
	}
	switch t.Kind {
	case metadata.TypeNamed, metadata.TypePrimitive:
	default:
		return "", false
	}
	if strings.ContainsRune(t.Name, '`') && t.Assembly != "" {
		return t.Assembly + "." + t.Name, true
	}
	return t.FullName(), true
}

func hasSpecialChars(s string) bool { return strings.ContainsAny(s, specialChars) }

// skipType reports whether a definition is left out of the type graphs.
func skipType(d *metadata.TypeDef) bool {
	if d == nil || d.Type == nil || d.Name() == "" || d.Name() == "<Module>" {
		return true
	}
	if d.CompilerGenerated {
		return true
	}
	return hasSpecialChars(d.Name()) || hasSpecialChars(d.FullName())
}
