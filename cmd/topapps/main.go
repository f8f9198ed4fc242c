// Package main provides the CLI entry point for the topapps pipeline.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/canectors/topapps/internal/cli"
	"github.com/canectors/topapps/internal/config"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/persistence"
	"github.com/canectors/topapps/pkg/connector"
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	verbose   bool
	quiet     bool
	logFormat string
	stateDir  string
}

func (g *globalOptions) outputOptions(format string) cli.OutputOptions {
	return cli.OutputOptions{Verbose: g.verbose, Quiet: g.quiet, Format: format}
}

func (g *globalOptions) stateStore() *persistence.StateStore {
	return persistence.NewStateStore(g.stateDir)
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return cli.ExitSuccess
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(stderr, "✗ %v\n", err)
	return cli.ExitRuntimeError
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "topapps",
		Short: "topapps - top rated apps pipeline",
		Long: `topapps extracts an apps catalogue and its reviews from CSV files,
keeps the apps of one category above a rating and review count, ranks
them and loads the result into a database table.

Examples:
  # Run with the defaults (apps_data.csv, review_data.csv, FOOD_AND_DRINK)
  topapps run

  # Run a configured pipeline with a different category
  topapps run pipeline.yaml --category GAME --min-rating 4.5

  # Preview without loading
  topapps run pipeline.yaml --dry-run

  # Serve the HTTP API
  topapps serve pipeline.yaml --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			switch {
			case g.verbose:
				level = slog.LevelDebug
			case g.quiet:
				level = slog.LevelError
			}
			logger.SetLevelAndFormat(level, logger.ParseFormat(g.logFormat))
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&g.quiet, "quiet", "q", false, "Suppress non-error output")
	flags.StringVar(&g.logFormat, "log-format", "json", "Log format: json or human")
	flags.StringVar(&g.stateDir, "state-dir", persistence.DefaultStatePath, "Directory of run state files")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newShowCmd(g),
		newCategoriesCmd(),
		newStatusCmd(g),
		newScheduleCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// loadPipeline loads the configuration at path, or the default pipeline
// when path is empty. Configuration errors are printed and returned as
// an exitError with the parse or validation exit code.
func loadPipeline(cmd *cobra.Command, g *globalOptions, path string) (*connector.Pipeline, error) {
	if path == "" {
		return config.Default(), nil
	}
	p, result := config.NewLoader("").Load(path)
	if p != nil {
		return p, nil
	}
	code := cli.PrintConfigResult(cmd.ErrOrStderr(), result, g.verbose, g.quiet)
	return nil, exitWith(code, result.Err())
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
