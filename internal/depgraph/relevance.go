package depgraph

import (
	"strings"

	"cilscope/internal/metadata"
)

// Relevance decides whether a member type is worth recording and returns the
// keys of the named types it depends on.
type Relevance func(t *metadata.Type) (relevant bool, deps []string)

// DefaultRelevance ignores primitives, generic parameters, compiler-named
// types and types under an excluded namespace prefix. Arrays, pointers and
// byrefs are unwrapped; generic instantiations contribute their definition
// and every argument, recursively. A type is relevant when at least one
// dependency survives.
func DefaultRelevance(exclude []string) Relevance {
	p := prefixes(exclude)
	return func(t *metadata.Type) (bool, []string) {
		var deps []string
		seen := make(map[string]bool)
		collect(t, p, seen, &deps)
		return len(deps) > 0, deps
	}
}

func collect(t *metadata.Type, p prefixes, seen map[string]bool, deps *[]string) {
	for t != nil {
		switch t.Kind {
		case metadata.TypeSZArray, metadata.TypeArray, metadata.TypeByRef, metadata.TypePtr:
			t = t.Of
			continue
		case metadata.TypeGenericInst:
			collect(t.Of, p, seen, deps)
			for _, a := range t.Args {
				collect(a, p, seen, deps)
			}
			return
		case metadata.TypeNamed:
			if ignored(t, p) {
				return
			}
			if k, ok := TypeKey(t); ok && !seen[k] {
				seen[k] = true
				*deps = append(*deps, k)
			}
		}
		return
	}
}

func ignored(t *metadata.Type, p prefixes) bool {
	if t.IsPrimitive() || hasSpecialChars(t.Name) || hasSpecialChars(t.FullName()) {
		return true
	}
	return p.match(t.FullName())
}

// prefixes matches names case-insensitively by prefix.
type prefixes []string

func (p prefixes) match(name string) bool {
	for _, pre := range p {
		if len(name) >= len(pre) && strings.EqualFold(name[:len(pre)], pre) {
			return true
		}
	}
	return false
}
