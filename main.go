package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thiremani/simmod/compiler"
	"github.com/thiremani/simmod/config"
	"github.com/thiremani/simmod/parser"
	"github.com/thiremani/simmod/symbols"
)

// cli holds the flags shared by the commands.
type cli struct {
	configPath string
	deSolve    bool
	runtime    bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "simmod",
		Short: "simmod compiles model descriptions into C",
		Long: `simmod reads a model description, checks it, and writes the C source
of the model for the simmod runtime or for the R deSolve package.

Commands:
  build    Compile a model file into C
  check    Check a model file without writing anything
  version  Print version information
`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.FileName, "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log every SBML object read")

	buildCmd := &cobra.Command{
		Use:   "build [-R] [--runtime] <model-file> [output-file]",
		Short: "Compile a model file into C (default output " + compiler.DefaultOutput + ")",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  c.build,
	}
	buildCmd.Flags().BoolVarP(&c.deSolve, "deSolve", "R", false, "write a model file for the R deSolve package")
	buildCmd.Flags().BoolVar(&c.runtime, "runtime", false, "compile the generated file against the simmod runtime")

	checkCmd := &cobra.Command{
		Use:   "check <model-file>",
		Short: "Check a model file without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE:  c.check,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(buildCmd, checkCmd, versionCmd)
	return rootCmd
}

// options merges the configuration file with the command line.
func (c *cli) options(cmd *cobra.Command) (config.Config, compiler.Options, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, compiler.Options{}, err
	}
	variant, err := compiler.ParseVariant(cfg.Variant)
	if err != nil {
		return cfg, compiler.Options{}, err
	}
	if c.deSolve {
		variant = compiler.DeSolve
	}
	opts := compiler.Options{
		Variant:   variant,
		MaxErrors: cfg.MaxErrors,
		MaxIndex:  cfg.MaxIndex,
		Parser: parser.Options{
			MaxName:     cfg.MaxName,
			MaxEquation: cfg.MaxEquation,
		},
		Generator: "simmod " + Version,
	}
	if c.verbose {
		opts.Log = cmd.OutOrStdout()
	}
	return cfg, opts, nil
}

func (c *cli) build(cmd *cobra.Command, args []string) error {
	input, output := args[0], compiler.DefaultOutput
	if len(args) == 2 {
		output = args[1]
	}
	cfg, opts, err := c.options(cmd)
	if err != nil {
		return err
	}
	if c.runtime && opts.Variant == compiler.DeSolve {
		return fmt.Errorf("--runtime needs the plain variant; deSolve models are built by R")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "↪ building %q → %q (%s) ...\n", input, output, opts.Variant)
	if err := compiler.Compile(input, output, cmd.ErrOrStderr(), opts); err != nil {
		return err
	}
	fmt.Fprintf(out, "✔︎ wrote %s\n", output)

	if !c.runtime {
		return nil
	}
	rc := newRTCompiler(cfg)
	fmt.Fprintf(out, "Using cache: %s\n", cfg.Cache)
	rtDir, objs, err := rc.prepareRuntime(cfg.Cache)
	if err != nil {
		return err
	}
	obj, err := rc.buildModel(output, rtDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✔︎ compiled %s\n", obj)
	for _, o := range objs {
		fmt.Fprintf(out, "  runtime: %s\n", o)
	}
	return nil
}

func (c *cli) check(cmd *cobra.Command, args []string) error {
	_, opts, err := c.options(cmd)
	if err != nil {
		return err
	}
	m, err := compiler.Analyze(args[0], cmd.ErrOrStderr(), opts)
	if err != nil {
		return err
	}
	defer m.Table.Release()
	printSummary(cmd.OutOrStdout(), args[0], m)
	return nil
}

func printSummary(w io.Writer, input string, m *compiler.Model) {
	tab := m.Table
	fmt.Fprintf(w, "%s: %d states, %d outputs, %d inputs, %d parameters\n", input,
		tab.Count(symbols.State), tab.Count(symbols.Output), tab.Count(symbols.Input), tab.Count(symbols.Parameter))
	if m.Delays {
		fmt.Fprintln(w, "  uses delays")
	}
	if m.Template {
		fmt.Fprintln(w, "  PK template instantiated")
	}
	for _, doc := range m.Documents {
		fmt.Fprintf(w, "  SBML: %s\n", doc)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
