package metadata

import (
	"fmt"
	"strconv"
)

// Scope resolves tokens in the context of one method body, adding local and
// parameter lookup on top of the module.
type Scope struct {
	*Module
	Method *Method
	Body   *Body
}

// Scope returns a Provider for md's body. body may be nil when only
// parameters are needed.
func (m *Module) Scope(md *Method, body *Body) *Scope {
	return &Scope{Module: m, Method: md, Body: body}
}

// ResolveLocal returns local variable i.
func (s *Scope) ResolveLocal(i int) (*Local, error) {
	if s.Body == nil {
		return nil, ErrNoScope
	}
	if s.Body.LocalsErr != nil {
		return nil, fmt.Errorf("locals: %w", s.Body.LocalsErr)
	}
	if i < 0 || i >= len(s.Body.Locals) {
		return nil, fmt.Errorf("%w: V_%d of %d", ErrNoLocal, i, len(s.Body.Locals))
	}
	return s.Body.Locals[i], nil
}

// ResolveParam returns argument slot i. For instance methods slot 0 is this.
func (s *Scope) ResolveParam(i int) (*Param, error) {
	if s.Method == nil || s.Method.Sig == nil {
		return nil, ErrNoScope
	}
	sig := s.Method.Sig
	pos := i
	if sig.HasThis && !sig.ExplicitThis {
		if i == 0 {
			return &Param{Index: 0, Name: "this", Type: thisType(s.Method.Declaring), IsThis: true}, nil
		}
		pos = i - 1
	}
	if pos < 0 || pos >= len(sig.Params) {
		return nil, fmt.Errorf("%w: argument %d of %d", ErrNoParam, i, len(sig.Params))
	}
	name := ""
	if pos < len(s.Method.ParamNames) {
		name = s.Method.ParamNames[pos]
	}
	if name == "" {
		name = "A_" + strconv.Itoa(i)
	}
	return &Param{Index: i, Name: name, Type: sig.Params[pos]}, nil
}

// thisType is the declaring type, or a managed pointer to it for value types.
func thisType(decl *Type) *Type {
	if decl == nil {
		return Primitive(ElemObject)
	}
	if decl.ValueType {
		return &Type{Kind: TypeByRef, Of: decl}
	}
	return decl
}
