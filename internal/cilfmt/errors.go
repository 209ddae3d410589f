// Package cilfmt provides shared types, the byte cursor and diagnostics for
// CIL method bodies and ECMA-335 metadata blobs.
package cilfmt

import (
	"errors"
	"fmt"
)

// Error classes. Every error produced while decoding wraps exactly one of these.
var (
	// ErrStructural: the byte stream itself is malformed (truncated, unknown
	// opcode, bad compressed integer). Decoding stops.
	ErrStructural = errors.New("cil: structural error")

	// ErrResolution: a token could not be resolved through the metadata provider.
	// Decoding continues; the affected instruction renders a placeholder.
	ErrResolution = errors.New("cil: resolution error")

	// ErrTarget: a branch or switch destination is not an instruction start.
	// The whole stream is marked invalid.
	ErrTarget = errors.New("cil: target error")
)

// Stream errors.
var (
	ErrRange           = fmt.Errorf("%w: read past end of data", ErrStructural)
	ErrBadCompressed   = fmt.Errorf("%w: malformed compressed integer", ErrStructural)
	ErrBadTypeDefOrRef = fmt.Errorf("%w: bad TypeDefOrRef coded index", ErrStructural)
	ErrBadToken        = fmt.Errorf("%w: token kind outside the supported set", ErrStructural)
)
