package main

import (
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"cilscope/internal/cilfmt"
	"cilscope/internal/config"
)

// globals carries the persistent flags and the resolved configuration.
type globals struct {
	configPath string
	strict     bool
	maxSteps   int
	verbose    int

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "cilscope",
		Short: "cilscope - CIL disassembler and assembly dependency analyzer",
		Long: `cilscope decodes CIL method bodies of .NET assemblies into ILASM-style
listings, builds control-flow and call graphs, and maps assembly, class and
interface dependencies with cycle detection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default: nearest "+config.FileName+")")
	pf.BoolVar(&g.strict, "strict", false, "fail on the first resolution error")
	pf.IntVar(&g.maxSteps, "max-steps", 0, "instruction cap per method body (0 = default)")
	pf.CountVarP(&g.verbose, "verbose", "v", "log verbosity (-v info, -vv debug)")

	root.AddCommand(
		newDisasmCmd(g),
		newRenderCmd(g),
		newGraphCmd(g),
		newInfoCmd(g),
		newSigCmd(g),
	)
	return root
}

// setup configures logging and merges flags over the configuration file.
func (g *globals) setup(cmd *cobra.Command) error {
	commonlog.Configure(g.verbose, nil)

	var err error
	if g.configPath != "" {
		g.cfg, err = config.Load(g.configPath)
	} else {
		g.cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if g.strict {
		g.cfg.Analysis.Mode = cilfmt.ModeStrict.String()
	}
	if cmd.Flags().Changed("max-steps") {
		g.cfg.Analysis.MaxSteps = g.maxSteps
	}
	return nil
}
