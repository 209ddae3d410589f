package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"cilscope/internal/metadata"
	"cilscope/internal/output"
)

func newInfoCmd(g *globals) *cobra.Command {
	var asm, out string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the manifest summary of an assembly",
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := metadata.Open(asm)
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			info := mod.Info()
			if out != "" {
				if err := output.WriteInfoJSON(out, info); err != nil {
					return err
				}
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().StringVar(&asm, "asm", "", "path to the assembly")
	cmd.Flags().StringVar(&out, "out", "", "also write info.json to this directory")
	_ = cmd.MarkFlagRequired("asm")
	return cmd
}

func printInfo(w io.Writer, info *metadata.Info) {
	fmt.Fprintln(w, titleStyle.Render(info.Name))
	printKV(w, "version", info.Version)
	if info.Culture != "" {
		printKV(w, "culture", info.Culture)
	}
	if info.PublicKeyToken != "" {
		printKV(w, "public key token", info.PublicKeyToken)
	}
	printKV(w, "runtime", info.RuntimeVersion)
	if info.EntryPoint != "" {
		printKV(w, "entry point", info.EntryPoint)
	}
	printKV(w, "types", fmt.Sprint(info.Types))
	printKV(w, "methods", fmt.Sprint(info.Methods))

	keys := make([]string, 0, len(info.Attributes))
	for k := range info.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printKV(w, k, info.Attributes[k])
	}
	if len(info.References) > 0 {
		fmt.Fprintln(w, titleStyle.Render("references"))
		for _, r := range info.References {
			fmt.Fprintln(w, mutedStyle.Render("   "+r))
		}
	}
}
