// Package dataset holds the in-memory table produced by extraction.
//
// A Table is a normalized header plus string cells. Typed decoding of cells
// (ratings, review counts, sentiment values) belongs to the transform stage,
// so a Table never loses information present in the source.
package dataset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/canectors/topapps/internal/errhandling"
)

var separatorRun = regexp.MustCompile(`[\s\-.]+`)

// NormalizeHeader returns the canonical form of a column name: trimmed,
// lower-cased, with runs of whitespace, dashes and dots replaced by "_".
func NormalizeHeader(name string) string {
	name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	name = strings.ToLower(name)
	return separatorRun.ReplaceAllString(name, "_")
}

// Table is an extracted tabular data source.
type Table struct {
	// Source is the path or name the table was read from
	Source string
	// Columns is the normalized header, in source order
	Columns []string
	// Rows holds the data cells; every row has len(Columns) cells
	Rows [][]string

	index map[string]int
}

// New builds a Table from a raw header and rows. Header names are normalized;
// empty or duplicate names and rows of the wrong width are DataSourceErrors.
func New(source string, header []string, rows [][]string) (*Table, error) {
	t := &Table{
		Source:  source,
		Columns: make([]string, len(header)),
		Rows:    rows,
		index:   make(map[string]int, len(header)),
	}

	for i, raw := range header {
		name := NormalizeHeader(raw)
		if name == "" {
			return nil, &errhandling.DataSourceError{
				Source:  source,
				Message: fmt.Sprintf("header column %d is empty", i+1),
			}
		}
		if _, dup := t.index[name]; dup {
			return nil, &errhandling.DataSourceError{
				Source:  source,
				Column:  name,
				Message: "duplicate header column",
			}
		}
		t.index[name] = i
		t.Columns[i] = name
	}

	for i, row := range rows {
		if len(row) != len(header) {
			return nil, &errhandling.DataSourceError{
				Source:  source,
				Row:     i + 1,
				Message: fmt.Sprintf("expected %d fields, got %d", len(header), len(row)),
			}
		}
	}
	return t, nil
}

// Len returns the number of data rows. A nil table has no rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, normalizing name first.
// It never modifies t, so a Table may be read from several goroutines.
// Tables built without New are searched linearly.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if t == nil {
		return -1, false
	}
	name = NormalizeHeader(name)
	if t.index != nil {
		i, ok := t.index[name]
		return i, ok
	}
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnIndex(name)
	return ok
}

// Require returns a DataSourceError naming the first missing column.
func (t *Table) Require(names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if !t.HasColumn(name) {
			return &errhandling.DataSourceError{
				Source:  t.Source,
				Column:  NormalizeHeader(name),
				Message: "missing required column",
			}
		}
	}
	return nil
}

// Value returns the cell at (row, column). Missing columns yield "".
func (t *Table) Value(row int, column string) string {
	i, ok := t.ColumnIndex(column)
	if !ok {
		return ""
	}
	return t.Rows[row][i]
}
