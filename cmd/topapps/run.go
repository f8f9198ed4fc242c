package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canectors/topapps/internal/cli"
	"github.com/canectors/topapps/internal/config"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/factory"
	"github.com/canectors/topapps/internal/runtime"
)

type runOptions struct {
	category   string
	minRating  float64
	minReviews int64
	where      string
	limit      int
	apps       string
	reviews    string
	database   string
	table      string
	dataDir    string
	dryRun     bool
	output     string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run the pipeline once",
		Long: `Run extract, transform and load once.

Without a configuration file the default pipeline is used: apps_data.csv
and review_data.csv in the working directory, category FOOD_AND_DRINK,
minimum rating 4.0, minimum 1000 reviews, loaded into the top_apps table
of the market_research SQLite database under ./data.

Flags override the configured values.

Exit codes:
  0 - Pipeline executed successfully
  1 - Validation errors (configuration or criteria)
  2 - Parse errors
  3 - Runtime errors (unreadable sources, load failures)

Examples:
  topapps run
  topapps run --category GAME --min-rating 4.5 --min-reviews 5000
  topapps run pipeline.yaml --dry-run --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, g, o, optionalArg(args))
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.category, "category", "", "App category (see 'topapps categories')")
	f.Float64Var(&o.minRating, "min-rating", 0, "Minimum rating, inclusive, within [0, 5]")
	f.Int64Var(&o.minReviews, "min-reviews", 0, "Minimum number of reviews, inclusive")
	f.StringVar(&o.where, "where", "", "Additional boolean filter expression")
	f.IntVar(&o.limit, "limit", 0, "Keep only the first N ranked apps (0 keeps all)")
	f.StringVar(&o.apps, "apps", "", "Apps CSV file")
	f.StringVar(&o.reviews, "reviews", "", "Reviews CSV file")
	f.StringVar(&o.database, "database", "", "Destination database name")
	f.StringVar(&o.table, "table", "", "Destination table name")
	f.StringVar(&o.dataDir, "data-dir", "", "Directory of file-backed destinations")
	f.BoolVar(&o.dryRun, "dry-run", false, "Extract and transform without loading")
	f.StringVarP(&o.output, "output", "o", cli.FormatTable, "Output format: table or json")
	return cmd
}

// overrides collects the flags set on the command line.
func (o *runOptions) overrides(cmd *cobra.Command) config.Overrides {
	var ov config.Overrides
	changed := cmd.Flags().Changed
	if changed("category") {
		ov.Category = &o.category
	}
	if changed("min-rating") {
		ov.MinRating = &o.minRating
	}
	if changed("min-reviews") {
		ov.MinReviews = &o.minReviews
	}
	if changed("where") {
		ov.Where = &o.where
	}
	if changed("limit") {
		ov.Limit = &o.limit
	}
	if changed("apps") {
		ov.AppsPath = &o.apps
	}
	if changed("reviews") {
		ov.ReviewsPath = &o.reviews
	}
	if changed("database") {
		ov.Database = &o.database
	}
	if changed("table") {
		ov.Table = &o.table
	}
	if changed("data-dir") {
		ov.DataDir = &o.dataDir
	}
	return ov
}

func runPipeline(cmd *cobra.Command, g *globalOptions, o *runOptions, configPath string) error {
	if o.output != cli.FormatTable && o.output != cli.FormatJSON {
		return exitWith(cli.ExitValidationError, fmt.Errorf("unknown output format %q", o.output))
	}

	p, err := loadPipeline(cmd, g, configPath)
	if err != nil {
		return err
	}
	p = o.overrides(cmd).Apply(p)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := runtime.NewRunner(factory.NewExecutor, runtime.WithStateRecorder(g.stateStore()))
	result, runErr := runner.Run(ctx, p, o.dryRun)

	if err := cli.PrintExecutionResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, g.outputOptions(o.output)); err != nil {
		return exitWith(cli.ExitRuntimeError, err)
	}
	if runErr != nil {
		return exitWith(runExitCode(runErr), runErr)
	}
	return nil
}

// runExitCode maps a run failure to an exit code. Invalid criteria are
// validation errors; everything else happened at run time.
func runExitCode(err error) int {
	if errhandling.IsCriteriaError(err) {
		return cli.ExitValidationError
	}
	return cli.ExitRuntimeError
}
