package output

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/pathutil"
	"github.com/canectors/topapps/pkg/connector"
)

// CSVSink stores each table as <dataDir>/<database>/<table>.csv.
// Files are replaced atomically: written to a temporary file in the same
// directory, synced, then renamed over the previous file.
type CSVSink struct {
	dataDir string
}

// NewCSVSink creates a CSV sink rooted at dataDir.
func NewCSVSink(dataDir string) *CSVSink {
	return &CSVSink{dataDir: dataDir}
}

func (s *CSVSink) path(db, table string) (string, error) {
	return pathutil.JoinUnder(s.dataDir, db, table+".csv")
}

// WriteTable replaces the table file with rs.
func (s *CSVSink) WriteTable(ctx context.Context, db, table string, rs *connector.ResultSet) error {
	path, err := s.path(db, table)
	if err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "invalid destination path", err, false)
	}
	if err := ctx.Err(); err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "load canceled", err, false)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "cannot create database directory", err, false)
	}

	tmp, err := os.CreateTemp(dir, "."+table+"-*.csv.tmp")
	if err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "cannot create temporary file", err, false)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeCSV(tmp, rs); err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "cannot write rows", err, false)
	}
	if err := tmp.Sync(); err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "cannot sync file", err, false)
	}
	if err := tmp.Close(); err != nil {
		return errhandling.NewPersistenceError(db, table, "write", "cannot close file", err, false)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		committed = true
		return errhandling.NewPersistenceError(db, table, "write", "cannot replace table file", err, false)
	}
	committed = true

	logger.Debug("table replaced",
		slog.String("driver", "csv"),
		slog.String("path", path),
		slog.Int("records", rs.Len()))
	return nil
}

func writeCSV(w io.Writer, rs *connector.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rs.Columns()); err != nil {
		return err
	}
	record := make([]string, 0, len(connector.ResultColumns)+len(rs.MetadataColumns))
	for _, r := range rs.Records {
		record = record[:0]
		for _, v := range encodeRecord(r, rs.MetadataColumns) {
			record = append(record, valueString(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable parses the table file. Rows are stored in rank order.
func (s *CSVSink) ReadTable(ctx context.Context, db, table string) (*connector.ResultSet, error) {
	path, err := s.path(db, table)
	if err != nil {
		return nil, errhandling.NewPersistenceError(db, table, "read", "invalid destination path", err, false)
	}
	if err := ctx.Err(); err != nil {
		return nil, errhandling.NewPersistenceError(db, table, "read", "read canceled", err, false)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errhandling.NewPersistenceError(db, table, "read", "table does not exist", err, false)
	}
	if err != nil {
		return nil, errhandling.NewPersistenceError(db, table, "read", "cannot open table file", err, false)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errhandling.NewPersistenceError(db, table, "read", "cannot parse table file", err, false)
	}
	if len(records) == 0 {
		return nil, errhandling.NewPersistenceError(db, table, "read", "table file has no header", nil, false)
	}

	rows := make([][]interface{}, len(records)-1)
	for i, rec := range records[1:] {
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		rows[i] = row
	}
	rs, err := decodeRows(records[0], rows)
	if err != nil {
		return nil, errhandling.NewPersistenceError(db, table, "read", "stored table is not a result set", err, false)
	}
	return rs, nil
}

// Close is a no-op; files are closed after every operation.
func (s *CSVSink) Close() error {
	return nil
}

// String describes the sink for logs.
func (s *CSVSink) String() string {
	return fmt.Sprintf("csv(%s)", s.dataDir)
}
