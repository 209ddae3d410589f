package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cilscope/internal/disasm"
	"cilscope/internal/metadata"
)

func newSigCmd(g *globals) *cobra.Command {
	var hexBlob, asm string
	cmd := &cobra.Command{
		Use:   "sig",
		Short: "Decode a stand-alone method signature blob",
		Example: `  cilscope sig --hex 0002080e1c
  cilscope sig --asm App.dll --hex "20 01 01 12 08"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSig(cmd.OutOrStdout(), hexBlob, asm)
		},
	}
	cmd.Flags().StringVar(&hexBlob, "hex", "", "signature bytes in hex (spaces allowed)")
	cmd.Flags().StringVar(&asm, "asm", "", "assembly used to resolve class and valuetype tokens")
	_ = cmd.MarkFlagRequired("hex")
	return cmd
}

func runSig(w io.Writer, hexBlob, asm string) error {
	blob, err := hex.DecodeString(strings.Join(strings.Fields(hexBlob), ""))
	if err != nil {
		return fmt.Errorf("--hex: %w", err)
	}

	var p metadata.Provider
	if asm != "" {
		mod, err := metadata.Open(asm)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		p = mod
	}

	sig, err := disasm.DecodeSignature(blob, p)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintln(w, sig.String())
		return nil
	}
	fmt.Fprintln(w, sig.Format(disasm.NewTypeFormatter(p)))
	return nil
}
