package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/persistence"
	"github.com/canectors/topapps/pkg/connector"
)

// Output formats of run results.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	// Format is FormatTable (default) or FormatJSON
	Format string
}

// PrintExecutionResult displays a run result. Failures go to errW, the
// result set to w.
func PrintExecutionResult(w, errW io.Writer, result *connector.ExecutionResult, opts OutputOptions) error {
	if result == nil {
		fmt.Fprintln(errW, "✗ No execution result available")
		return nil
	}
	if opts.Format == FormatJSON {
		return WriteJSON(w, result)
	}

	if result.Error != nil {
		PrintExecutionError(errW, result.Error, opts.Verbose)
	}
	if opts.Quiet {
		return nil
	}

	if result.Error == nil {
		switch {
		case result.DryRun:
			fmt.Fprintln(w, "✓ Pipeline previewed (dry-run, nothing loaded)")
		default:
			fmt.Fprintf(w, "✓ Loaded %d records into %s\n", result.RecordsProcessed, result.Destination.Key())
		}
	}
	if result.Results == nil {
		return nil
	}

	fmt.Fprintf(w, "  Category: %s  min rating: %s  min reviews: %d\n",
		result.Criteria.Category, formatRating(result.Criteria.MinRating), result.Criteria.MinReviews)
	fmt.Fprintf(w, "  %s\n", logger.FormatMetricsHuman(logger.ExecutionMetrics{
		TotalDuration:    result.CompletedAt.Sub(result.StartedAt),
		AppsExtracted:    result.AppsExtracted,
		ReviewsExtracted: result.ReviewsExtracted,
		RecordsProcessed: result.RecordsProcessed,
		LoadAttempts:     result.LoadAttempts,
	}))
	fmt.Fprintln(w)

	PrintResultSet(w, result.Results)
	if result.Summary != nil && result.Summary.Count > 0 {
		fmt.Fprintln(w)
		PrintSummary(w, result.Summary)
	}
	if opts.Verbose {
		fmt.Fprintf(w, "\n  Timings: extract %s, transform %s, load %s\n",
			logger.FormatDuration(result.Timings.Extract),
			logger.FormatDuration(result.Timings.Transform),
			logger.FormatDuration(result.Timings.Load))
	}
	return nil
}

// PrintResultSet renders the records of rs as a table.
func PrintResultSet(w io.Writer, rs *connector.ResultSet) {
	if rs.Len() == 0 {
		fmt.Fprintln(w, "No apps match the criteria.")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "App", "Rating", "Reviews", "Review rows", "Polarity", "Subjectivity", "+", "=", "-"})
	for _, r := range rs.Records {
		rating := "-"
		if r.Rated {
			rating = formatRating(r.Rating)
		}
		t.AppendRow(table.Row{
			r.Rank,
			r.ID,
			rating,
			r.Reviews,
			r.ReviewAggregate.Rows,
			formatOptional(r.AvgPolarity),
			formatOptional(r.AvgSubjectivity),
			r.Positive,
			r.Neutral,
			r.Negative,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 40},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
}

// PrintSummary prints aggregate statistics and the three best rated apps.
func PrintSummary(w io.Writer, s *connector.Summary) {
	fmt.Fprintf(w, "Apps: %d  average rating: %.2f  average reviews: %.0f  total reviews: %d\n",
		s.Count, s.AvgRating, s.AvgReviews, s.TotalReviews)
	for i, app := range s.Top {
		fmt.Fprintf(w, "  %d. %s (%s, %d reviews)\n", i+1, app.ID, formatRating(app.Rating), app.Reviews)
	}
}

// PrintCategories lists the supported categories.
func PrintCategories(w io.Writer, categories []connector.Category) {
	for _, c := range categories {
		fmt.Fprintln(w, c)
	}
}

// PrintRunStates renders the recorded state of each pipeline.
func PrintRunStates(w io.Writer, states []*persistence.RunState) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Pipeline", "Last run", "Status", "Records", "Destination", "Runs", "Failures", "Last error"})
	for _, s := range states {
		lastErr := ""
		if s.LastError != nil {
			lastErr = truncate(s.LastError.Code+": "+s.LastError.Message, 60)
		}
		t.AppendRow(table.Row{
			s.PipelineID,
			s.LastRunAt.Format(time.RFC3339),
			s.LastStatus,
			s.RecordsProcessed,
			s.Destination.Key(),
			s.Runs,
			s.Failures,
			lastErr,
		})
	}
	t.Render()
}

// ScheduleEntry is one row of PrintSchedule.
type ScheduleEntry struct {
	PipelineID string
	Schedule   string
	NextRun    time.Time
}

// PrintSchedule renders registered pipelines with their next run time.
func PrintSchedule(w io.Writer, entries []ScheduleEntry) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Pipeline", "Schedule", "Next run"})
	for _, e := range entries {
		next := "-"
		if !e.NextRun.IsZero() {
			next = e.NextRun.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{e.PipelineID, e.Schedule, next})
	}
	t.Render()
}

// PrintConfigSummary prints the main settings of a pipeline.
func PrintConfigSummary(w io.Writer, p *connector.Pipeline) {
	fmt.Fprintf(w, "  Pipeline: %s (%s)\n", p.Name, p.ID)
	if p.Version != "" {
		fmt.Fprintf(w, "  Version: %s\n", p.Version)
	}
	fmt.Fprintf(w, "  Apps: %s\n", p.Sources.Apps.Path)
	if p.Sources.Reviews.Path != "" {
		fmt.Fprintf(w, "  Reviews: %s\n", p.Sources.Reviews.Path)
	}
	fmt.Fprintf(w, "  Criteria: category=%s minRating=%s minReviews=%d\n",
		p.Criteria.Category, formatRating(p.Criteria.MinRating), p.Criteria.MinReviews)
	if p.Criteria.Where != "" {
		fmt.Fprintf(w, "  Where: %s\n", p.Criteria.Where)
	}
	fmt.Fprintf(w, "  Destination: %s\n", p.Destination.Key())
	if p.Schedule != "" {
		fmt.Fprintf(w, "  Schedule: %s\n", p.Schedule)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func formatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', 1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
