package disasm

import (
	"fmt"
	"strings"

	"cilscope/internal/metadata"
)

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation.
type Annotator func(in *Inst) string

// HandlerAnnotator marks the boundaries of protected regions and their
// handlers: ".try", "end .try", "catch <token>", "filter", "finally",
// "fault".
func HandlerAnnotator(clauses []metadata.ExceptionClause) Annotator {
	notes := make(map[int][]string)
	for _, c := range clauses {
		try, end, h := int(c.TryOffset), int(c.TryOffset+c.TryLength), int(c.HandlerOffset)
		notes[try] = append(notes[try], ".try")
		notes[end] = append(notes[end], "end .try")
		switch {
		case c.Flags&metadata.ClauseFilter != 0:
			notes[int(c.FilterOffset)] = append(notes[int(c.FilterOffset)], "filter")
			notes[h] = append(notes[h], "filter handler")
		case c.Flags&metadata.ClauseFinally != 0:
			notes[h] = append(notes[h], "finally")
		case c.Flags&metadata.ClauseFault != 0:
			notes[h] = append(notes[h], "fault")
		default:
			notes[h] = append(notes[h], "catch "+c.ClassToken.String())
		}
	}
	return func(in *Inst) string {
		return strings.Join(dedup(notes[in.Offset]), "; ")
	}
}

func dedup(ss []string) []string {
	if len(ss) < 2 {
		return ss
	}
	seen := make(map[string]bool, len(ss))
	out := ss[:0:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ErrorAnnotator reports per-instruction resolution failures.
func ErrorAnnotator() Annotator {
	return func(in *Inst) string {
		if in.Err == nil {
			return ""
		}
		return fmt.Sprintf("error: %v", in.Err)
	}
}

// TargetAnnotator marks instructions that some branch or switch lands on.
func TargetAnnotator() Annotator {
	return func(in *Inst) string {
		if in.IsTarget {
			return "<- target"
		}
		return ""
	}
}
