package disasm

import (
	"errors"
	"fmt"

	"cilscope/internal/cilfmt"
	"cilscope/internal/metadata"
)

// TargetError reports a branch or switch destination that is not the start
// of an instruction.
type TargetError struct {
	Offset int // the branching instruction
	Target int
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("IL_%04X: branch target IL_%04X is not an instruction start", e.Offset, e.Target)
}

func (e *TargetError) Is(target error) bool { return target == cilfmt.ErrTarget }

// ResolutionError reports an operand token the provider could not resolve.
type ResolutionError struct {
	Offset int
	Token  cilfmt.Token
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Token != 0 {
		return fmt.Sprintf("IL_%04X: resolve %s: %v", e.Offset, e.Token, e.Err)
	}
	return fmt.Sprintf("IL_%04X: resolve: %v", e.Offset, e.Err)
}

func (e *ResolutionError) Is(target error) bool { return target == cilfmt.ErrResolution }

func (e *ResolutionError) Unwrap() error { return e.Err }

// resolveTargets links every branch and switch to its destination
// instructions and marks them as targets.
func (il *MethodIL) resolveTargets() error {
	for _, in := range il.Insts {
		if in.Kind != KindBranch && in.Kind != KindSwitch {
			continue
		}
		dest := make([]*Inst, len(in.Targets))
		for i, t := range in.Targets {
			d := il.InstAt(t)
			if d == nil {
				return &TargetError{Offset: in.Offset, Target: t}
			}
			d.IsTarget = true
			dest[i] = d
		}
		in.setValue(Value{Targets: dest})
	}
	return nil
}

// resolveTokens calls the provider once per operand-bearing instruction.
// In strict mode the first failure is returned; otherwise failures stay on
// the instruction and in Diags.
func (il *MethodIL) resolveTokens(p metadata.Provider, mode cilfmt.Mode) error {
	for _, in := range il.Insts {
		if in.resolved {
			continue
		}
		err := resolve(in, p)
		if err == nil {
			continue
		}
		tok, _ := in.Token()
		rerr := &ResolutionError{Offset: in.Offset, Token: tok, Err: err}
		in.Err = rerr
		il.Diags.Add(uint64(in.Offset), cilfmt.DiagUnresolved, rerr.Error())
		if mode == cilfmt.ModeStrict {
			return rerr
		}
	}
	return nil
}

func resolve(in *Inst, p metadata.Provider) error {
	switch in.Kind {
	case KindVariable:
		idx, _ := in.Index()
		l, err := p.ResolveLocal(idx)
		if err != nil {
			return err
		}
		in.setValue(Value{Local: l})
		return nil
	case KindParameter:
		idx, _ := in.Index()
		a, err := p.ResolveParam(idx)
		if err != nil {
			return err
		}
		in.setValue(Value{Param: a})
		return nil
	}

	tok, ok := in.Token()
	if !ok {
		return nil
	}
	switch in.Kind {
	case KindField:
		f, err := p.ResolveField(tok)
		if err != nil {
			return err
		}
		in.setValue(Value{Field: f})
	case KindMethod:
		m, err := p.ResolveMethod(tok)
		if err != nil {
			return err
		}
		in.setValue(Value{Method: m})
	case KindType:
		t, err := p.ResolveType(tok)
		if err != nil {
			return err
		}
		in.setValue(Value{Type: t})
	case KindString:
		s, err := p.ResolveString(tok)
		if err != nil {
			return err
		}
		in.setValue(Value{Str: s})
	case KindSignature:
		blob, err := p.ResolveSignature(tok)
		if err != nil {
			return err
		}
		sig, err := DecodeSignature(blob, p)
		if err != nil {
			return err
		}
		in.setValue(Value{Signature: sig})
	case KindMember:
		m, err := p.ResolveMember(tok)
		if err != nil {
			return err
		}
		switch v := m.(type) {
		case *metadata.Method:
			in.Kind = KindMethod
			in.setValue(Value{Method: v})
		case *metadata.Field:
			in.Kind = KindField
			in.setValue(Value{Field: v})
		case *metadata.Type:
			in.Kind = KindType
			in.setValue(Value{Type: v})
		default:
			return errors.New("provider returned an unknown member kind")
		}
	}
	return nil
}
