package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/canectors/topapps/internal/cache"
	"github.com/canectors/topapps/internal/cli"
	"github.com/canectors/topapps/internal/factory"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/metrics"
	"github.com/canectors/topapps/internal/modules/output"
	"github.com/canectors/topapps/internal/persistence"
	"github.com/canectors/topapps/internal/runtime"
	"github.com/canectors/topapps/internal/scheduler"
	"github.com/canectors/topapps/internal/server"
	"github.com/canectors/topapps/pkg/connector"
)

const stopTimeout = 30 * time.Second

func newValidateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a pipeline configuration file",
		Long: `Validate a pipeline configuration file against the schema, then check
the criteria, destination identifiers and schedule.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors
  2 - Parse errors (invalid JSON/YAML syntax)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(cmd, g, args[0])
			if err != nil {
				return err
			}
			if !g.quiet {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "✓ Configuration is valid")
				if g.verbose {
					cli.PrintConfigSummary(out, p)
				}
			}
			return nil
		},
	}
}

func newShowCmd(g *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show [config-file]",
		Short: "Show the table loaded by the last run",
		Long: `Read the destination table of a pipeline back and print it.

Examples:
  topapps show
  topapps show pipeline.yaml --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(cmd, g, optionalArg(args))
			if err != nil {
				return err
			}
			sink, err := factory.CreateSink(p.Destination)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return exitWith(cli.ExitRuntimeError, err)
			}
			defer sink.Close()

			rs, err := output.Read(cmd.Context(), sink, p.Destination.Database, p.Destination.Table)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return exitWith(cli.ExitRuntimeError, err)
			}

			out := cmd.OutOrStdout()
			if format == cli.FormatJSON {
				return cli.WriteJSON(out, rs)
			}
			fmt.Fprintf(out, "%s (%d records)\n", p.Destination.Key(), rs.Len())
			cli.PrintResultSet(out, rs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", cli.FormatTable, "Output format: table or json")
	return cmd
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the supported app categories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cli.PrintCategories(cmd.OutOrStdout(), connector.Categories())
		},
	}
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [config-file]",
		Short: "Show recorded run state",
		Long: `Show the recorded outcome of past runs: last run, status, record count
and failures. Without a configuration file every recorded pipeline is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := g.stateStore()
			var states []*persistence.RunState

			if len(args) == 0 {
				all, err := store.List()
				if err != nil {
					return exitWith(cli.ExitRuntimeError, err)
				}
				states = all
			} else {
				p, err := loadPipeline(cmd, g, args[0])
				if err != nil {
					return err
				}
				state, err := store.Load(p.ID)
				if err != nil {
					return exitWith(cli.ExitRuntimeError, err)
				}
				if state != nil {
					states = append(states, state)
				}
			}
			cli.PrintRunStates(cmd.OutOrStdout(), states)
			return nil
		},
	}
}

func newScheduleCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <config-file>...",
		Short: "Run pipelines on their CRON schedules",
		Long: `Register every enabled pipeline that has a schedule and run it on that
schedule until interrupted. Runs loading into the same destination never
overlap.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := runtime.NewRunner(factory.NewExecutor, runtime.WithStateRecorder(g.stateStore()))
			sched := scheduler.NewWithExecutor(runner)

			var pipelines []*connector.Pipeline
			for _, path := range args {
				p, err := loadPipeline(cmd, g, path)
				if err != nil {
					return err
				}
				pipelines = append(pipelines, p)
			}
			if err := registerScheduled(sched, pipelines); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return exitWith(cli.ExitValidationError, err)
			}

			if err := sched.Start(ctx); err != nil {
				return exitWith(cli.ExitRuntimeError, err)
			}
			if !g.quiet {
				cli.PrintSchedule(cmd.OutOrStdout(), scheduleEntries(sched, pipelines))
			}

			<-ctx.Done()
			return stopScheduler(sched)
		},
	}
}

// registerScheduled registers the enabled pipelines that have a schedule.
// It fails when none could be registered.
func registerScheduled(sched *scheduler.Scheduler, pipelines []*connector.Pipeline) error {
	for _, p := range pipelines {
		if !p.Enabled || p.Schedule == "" {
			logger.Warn("pipeline not scheduled",
				slog.String("pipeline_id", p.ID),
				slog.Bool("enabled", p.Enabled),
				slog.String("schedule", p.Schedule),
			)
			continue
		}
		if err := sched.Register(p); err != nil {
			return err
		}
	}
	if sched.PipelineCount() == 0 {
		return errors.New("no enabled pipeline has a schedule")
	}
	return nil
}

func scheduleEntries(sched *scheduler.Scheduler, pipelines []*connector.Pipeline) []cli.ScheduleEntry {
	var entries []cli.ScheduleEntry
	for _, p := range pipelines {
		if !sched.HasPipeline(p.ID) {
			continue
		}
		next, _ := sched.GetNextRun(p.ID)
		entries = append(entries, cli.ScheduleEntry{PipelineID: p.ID, Schedule: p.Schedule, NextRun: next})
	}
	return entries
}

func stopScheduler(sched *scheduler.Scheduler) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		return exitWith(cli.ExitRuntimeError, err)
	}
	return nil
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [config-file]",
		Short: "Serve the HTTP API",
		Long: `Serve previews and runs of a pipeline over HTTP:

  GET  /healthz      liveness
  GET  /categories   supported categories
  GET  /top-apps     preview (?category=&minRating=&minReviews=&limit=)
  POST /runs         full run, optional JSON criteria override
  GET  /runs/last    recorded state of the last run
  GET  /metrics      Prometheus metrics

When the pipeline has a schedule it also runs on that schedule.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(cmd, g, optionalArg(args))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New(nil)
			results := cache.New(p.Cache)
			m.RegisterCache(func() (uint64, uint64, int) {
				s := results.Stats()
				return s.Hits, s.Misses, s.Size
			})
			state := g.stateStore()
			runner := runtime.NewRunner(factory.NewExecutor,
				runtime.WithObserver(m),
				runtime.WithStateRecorder(state),
			)

			if p.Enabled && p.Schedule != "" {
				sched := scheduler.NewWithExecutor(runner)
				if err := sched.Register(p); err != nil {
					return exitWith(cli.ExitValidationError, err)
				}
				if err := sched.Start(ctx); err != nil {
					return exitWith(cli.ExitRuntimeError, err)
				}
				defer func() { _ = stopScheduler(sched) }()
			}

			srv := server.New(p, runner,
				server.WithCache(results),
				server.WithMetrics(m),
				server.WithStateStore(state),
			)
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return exitWith(cli.ExitRuntimeError, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
