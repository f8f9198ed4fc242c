package input

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/canectors/topapps/internal/dataset"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/pathutil"
)

// Delimiter names accepted in configuration.
const (
	DelimiterAuto  = "auto"
	DelimiterComma = ","
	DelimiterTab   = "\\t"
)

// cancelCheckInterval is the number of rows read between context checks.
const cancelCheckInterval = 1024

// CSVConfig holds configuration for reading one delimited file.
type CSVConfig struct {
	// Path is the file to read
	Path string
	// Delimiter is a single character, "\t", or "auto". Empty means ",".
	Delimiter string
	// Required lists columns that must be present in the header
	Required []string
}

// Extract reads a delimited file into a Table.
// It fails with a DataSourceError when the file is missing, unreadable,
// malformed, or lacks a required column.
func Extract(ctx context.Context, cfg CSVConfig) (*dataset.Table, error) {
	path, err := pathutil.SourcePath(cfg.Path)
	if err != nil {
		return nil, errhandling.NewDataSourceError(cfg.Path, "invalid path", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errhandling.NewDataSourceError(cfg.Path, "cannot open source", err)
	}
	defer func() { _ = f.Close() }()

	return Read(ctx, cfg.Path, f, cfg.Delimiter, cfg.Required...)
}

// Read parses delimited data from r. source names the data in errors.
func Read(ctx context.Context, source string, r io.Reader, delimiter string, required ...string) (*dataset.Table, error) {
	br := bufio.NewReader(r)

	comma, err := resolveDelimiter(br, delimiter)
	if err != nil {
		return nil, errhandling.NewDataSourceError(source, "invalid delimiter", err)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errhandling.NewDataSourceError(source, "source is empty, expected a header row", nil)
	}
	if err != nil {
		return nil, parseError(source, err)
	}

	var rows [][]string
	for {
		if len(rows)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(source, err)
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, record)
	}

	table, err := dataset.New(source, header, rows)
	if err != nil {
		return nil, err
	}
	if err := table.Require(required...); err != nil {
		return nil, err
	}
	return table, nil
}

// parseError converts an encoding/csv error into a DataSourceError.
// Row numbers exclude the header line.
func parseError(source string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		row := pe.StartLine - 1
		if row < 0 {
			row = 0
		}
		return &errhandling.DataSourceError{
			Source:  source,
			Row:     row,
			Message: "malformed record",
			Err:     pe.Err,
		}
	}
	return errhandling.NewDataSourceError(source, "cannot read source", err)
}

func isBlank(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

// resolveDelimiter turns the configured delimiter into a rune. "auto" peeks at
// the header line and picks the most frequent of comma, semicolon and tab.
func resolveDelimiter(br *bufio.Reader, delimiter string) (rune, error) {
	switch delimiter {
	case "", DelimiterComma:
		return ',', nil
	case DelimiterTab, "\t", "tab":
		return '\t', nil
	case DelimiterAuto:
		return sniffDelimiter(br), nil
	}

	if utf8.RuneCountInString(delimiter) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", delimiter)
	}
	r, _ := utf8.DecodeRuneInString(delimiter)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("delimiter %q is not allowed", delimiter)
	}
	return r, nil
}

func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t'} {
		if n := strings.Count(line, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// CSVInput is the input module reading one configured CSV source.
type CSVInput struct {
	name   string
	config CSVConfig
}

// NewCSVInput creates a CSV input module. name identifies the source in logs
// (for example "apps" or "reviews").
func NewCSVInput(name string, config CSVConfig) *CSVInput {
	return &CSVInput{name: name, config: config}
}

// Fetch reads the configured file.
func (m *CSVInput) Fetch(ctx context.Context) (*dataset.Table, error) {
	logger.Debug("reading csv source",
		slog.String("source", m.name),
		slog.String("path", m.config.Path),
		slog.String("delimiter", m.config.Delimiter))

	table, err := Extract(ctx, m.config)
	if err != nil {
		return nil, err
	}

	logger.Debug("csv source read",
		slog.String("source", m.name),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)))
	return table, nil
}

// Close releases resources (no-op, the file is closed after each Fetch).
func (m *CSVInput) Close() error {
	return nil
}
