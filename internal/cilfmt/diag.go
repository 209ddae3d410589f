package cilfmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagTruncated     DiagKind = "truncated"
	DiagInvalid       DiagKind = "invalid"
	DiagUnknownOpcode DiagKind = "unknown_opcode"
	DiagUnresolved    DiagKind = "unresolved"
	DiagBadTarget     DiagKind = "bad_target"
	DiagClamped       DiagKind = "clamped"
)

// Diag records a non-fatal issue encountered while decoding.
type Diag struct {
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] IL_%04X: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Count returns the number of diagnostics of the given kind.
func (d *Diags) Count(kind DiagKind) int {
	n := 0
	for _, it := range d.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Mode controls error handling behavior.
type Mode int

const (
	ModeBestEffort Mode = iota // placeholders for unresolved operands, accumulate diags
	ModeStrict                 // first resolution error fails the decode
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "best-effort"
}

// ParseMode maps a config/flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "best-effort", "besteffort":
		return ModeBestEffort, nil
	case "strict":
		return ModeStrict, nil
	}
	return ModeBestEffort, fmt.Errorf("cilfmt: unknown mode %q", s)
}

// Options controls decoding behavior across packages.
type Options struct {
	Mode     Mode
	MaxSteps int // instruction cap per method body; 0 = use default
}

// DefaultMaxSteps is the default per-body instruction cap.
const DefaultMaxSteps = 1_000_000

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}
