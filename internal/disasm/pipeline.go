package disasm

// MethodRecord is one line in methods.jsonl.
type MethodRecord struct {
	Token      string `json:"token"`
	Name       string `json:"name"`
	Owner      string `json:"owner,omitempty"`
	Signature  string `json:"signature,omitempty"`
	CodeSize   int    `json:"code_size"`
	MaxStack   int    `json:"max_stack,omitempty"`
	Insts      int    `json:"insts"`
	Blocks     int    `json:"blocks,omitempty"`
	ParamCount int    `json:"param_count,omitempty"`
	Invalid    bool   `json:"invalid,omitempty"`
	Error      string `json:"error,omitempty"`
	Unresolved int    `json:"unresolved,omitempty"`
}

// CallEdgeRecord is one line in call_edges.jsonl.
type CallEdgeRecord struct {
	FromFunc string `json:"from_func"`
	FromIL   string `json:"from_il"`
	Kind     string `json:"kind"`             // call, callvirt, newobj, ...
	Target   string `json:"target,omitempty"` // Declaring::Name or raw token
	Token    string `json:"token,omitempty"`
	Resolved bool   `json:"resolved"`
}

// NewCallEdgeRecord converts an extracted edge of method from.
func NewCallEdgeRecord(from string, e CallEdge) CallEdgeRecord {
	r := CallEdgeRecord{
		FromFunc: from,
		FromIL:   Label(e.FromOffset),
		Kind:     e.Kind,
		Target:   e.Target,
		Resolved: e.Resolved,
	}
	if e.Token != 0 {
		r.Token = e.Token.String()
	}
	return r
}
