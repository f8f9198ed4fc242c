package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/canectors/topapps/internal/errhandling"
)

const appsCSV = `App,Category,Rating,Reviews,Content Rating
Photo Editor,ART_AND_DESIGN,4.1,159,Everyone
"Coloring book, moana",ART_AND_DESIGN,3.9,967,Everyone
Sketch,ART_AND_DESIGN,,215644,Teen
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	path := writeFile(t, "apps.csv", appsCSV)

	table, err := Extract(context.Background(), CSVConfig{Path: path, Required: []string{"App", "Rating"}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	wantCols := []string{"app", "category", "rating", "reviews", "content_rating"}
	if diff := cmp.Diff(wantCols, table.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	if got := table.Value(1, "app"); got != "Coloring book, moana" {
		t.Errorf("quoted cell = %q", got)
	}
	if got := table.Value(2, "rating"); got != "" {
		t.Errorf("empty rating = %q", got)
	}
	if table.Source != path {
		t.Errorf("Source = %q, want %q", table.Source, path)
	}
}

func TestRead_Delimiters(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		delimiter string
	}{
		{"semicolon explicit", "app;rating\na;4.5\n", ";"},
		{"tab escaped", "app\trating\na\t4.5\n", `\t`},
		{"auto semicolon", "app;rating\na;4.5\n", "auto"},
		{"auto tab", "app\trating\na\t4.5\n", "auto"},
		{"auto comma", "app,rating\na,4.5\n", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Read(context.Background(), "mem", strings.NewReader(tt.data), tt.delimiter)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if got := table.Value(0, "rating"); got != "4.5" {
				t.Errorf("rating = %q, want 4.5", got)
			}
		})
	}
}

func TestRead_SkipsBlankLines(t *testing.T) {
	table, err := Read(context.Background(), "mem", strings.NewReader("app,rating\na,1\n\n   \nb,2\n"), "")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}

func TestExtract_ParentRelativePath(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "apps.csv"), []byte(appsCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o700); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(sub); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	table, err := Extract(context.Background(), CSVConfig{Path: "../apps.csv", Required: []string{"App"}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3", table.Len())
	}
	if table.Source != "../apps.csv" {
		t.Errorf("Source = %q, want the path as given", table.Source)
	}
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		content  *string
		cfg      CSVConfig
		wantRow  int
		wantCol  string
		wantText string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.csv"), wantText: "cannot open source"},
		{name: "empty path", path: "", wantText: "invalid path"},
		{name: "empty file", path: "empty.csv", content: strPtr(""), wantText: "empty"},
		{name: "ragged row", path: "ragged.csv", content: strPtr("app,rating\na,1\nb\n"), wantRow: 2, wantText: "expected 2 fields"},
		{name: "bad quote", path: "quote.csv", content: strPtr("app,rating\n\"a,1\nb\"x,2\n"), wantText: "malformed"},
		{name: "missing column", path: "cols.csv", content: strPtr("app,rating\na,1\n"), cfg: CSVConfig{Required: []string{"category"}}, wantCol: "category"},
		{name: "bad delimiter", path: "delim.csv", content: strPtr("a\n"), cfg: CSVConfig{Delimiter: "::"}, wantText: "invalid delimiter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Path = tt.path
			if tt.content != nil {
				cfg.Path = filepath.Join(dir, tt.path)
				if err := os.WriteFile(cfg.Path, []byte(*tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			table, err := Extract(context.Background(), cfg)
			if table != nil {
				t.Error("expected nil table on error")
			}
			var dsErr *errhandling.DataSourceError
			if !errors.As(err, &dsErr) {
				t.Fatalf("Extract() error = %v, want DataSourceError", err)
			}
			if !errors.Is(err, errhandling.ErrDataSource) {
				t.Error("error should match ErrDataSource")
			}
			if tt.wantRow != 0 && dsErr.Row != tt.wantRow {
				t.Errorf("Row = %d, want %d", dsErr.Row, tt.wantRow)
			}
			if tt.wantCol != "" && dsErr.Column != tt.wantCol {
				t.Errorf("Column = %q, want %q", dsErr.Column, tt.wantCol)
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestRead_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, "mem", strings.NewReader("app\na\n"), "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestCSVInput(t *testing.T) {
	path := writeFile(t, "reviews.csv", "App,Translated_Review,Sentiment,Sentiment_Polarity\na,Great,Positive,0.8\n")

	m := NewCSVInput("reviews", CSVConfig{Path: path})
	defer func() { _ = m.Close() }()

	var module Module = m
	table, err := module.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := table.Value(0, "sentiment_polarity"); got != "0.8" {
		t.Errorf("sentiment_polarity = %q", got)
	}
}

func strPtr(s string) *string { return &s }
