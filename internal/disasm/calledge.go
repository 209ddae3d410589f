package disasm

import "cilscope/internal/cilfmt"

// callOps are the opcodes that transfer control to, or take the address of,
// another method.
var callOps = map[string]bool{
	"call":      true,
	"callvirt":  true,
	"newobj":    true,
	"jmp":       true,
	"ldftn":     true,
	"ldvirtftn": true,
	"calli":     true,
}

// CallEdge represents a call site extracted from a method body.
type CallEdge struct {
	FromOffset int          `json:"from_offset"`
	Kind       string       `json:"kind"`             // opcode name, e.g. "callvirt"
	Target     string       `json:"target,omitempty"` // Declaring::Name, or the call-site signature for calli
	Token      cilfmt.Token `json:"token"`
	Resolved   bool         `json:"resolved"`
}

// IsCall reports whether in is a call site.
func IsCall(in *Inst) bool { return callOps[in.Op.Name] }

// ExtractCallEdges lists every call site of il in offset order. Sites whose
// token did not resolve keep the raw token as their target.
func ExtractCallEdges(il *MethodIL) []CallEdge {
	var edges []CallEdge
	for _, in := range il.Insts {
		if !IsCall(in) {
			continue
		}
		tok, _ := in.Token()
		e := CallEdge{FromOffset: in.Offset, Kind: in.Op.Name, Token: tok}
		v, ok := in.Value()
		switch {
		case ok && v.Method != nil:
			e.Target = v.Method.FullName()
			e.Resolved = true
		case ok && v.Signature != nil:
			e.Target = v.Signature.Format(il.fmt)
			e.Resolved = true
		default:
			e.Target = tok.String()
		}
		edges = append(edges, e)
	}
	return edges
}
