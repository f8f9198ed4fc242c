package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ColumnType is the storage class of a column.
type ColumnType int

// Column types shared by every driver.
const (
	TypeText ColumnType = iota
	TypeInteger
	TypeReal
)

// Column describes one table column.
type Column struct {
	Name string
	Type ColumnType
}

// maxParams bounds the number of bind parameters per INSERT statement.
// SQLite accepts 32766 and PostgreSQL 65535.
const (
	maxParams    = 30000
	maxBatchRows = 500
)

// Store replaces and reads whole tables on one connection pool.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore wraps an open connection pool. driver selects SQL dialect details.
func NewStore(db *sqlx.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Driver returns the store's driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) sqlType(t ColumnType) string {
	switch t {
	case TypeInteger:
		if s.driver == DriverPostgres {
			return "BIGINT"
		}
		return "INTEGER"
	case TypeReal:
		if s.driver == DriverPostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	default:
		return "TEXT"
	}
}

// ReplaceTable drops table (inside schema, when non-empty), recreates it with
// columns and inserts rows, all in one transaction. Either the new contents
// are fully visible afterwards or the previous contents are untouched.
// Errors are classified *DatabaseError values.
func (s *Store) ReplaceTable(ctx context.Context, schema, table string, columns []Column, rows [][]interface{}) (err error) {
	if len(columns) == 0 {
		return NewQueryError("create", "table needs at least one column", "", 0, nil, false)
	}
	name := QualifiedName(schema, table)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ClassifyDatabaseError(err, s.driver, "begin", "", 0)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if schema != "" && s.driver == DriverPostgres {
		q := "CREATE SCHEMA IF NOT EXISTS " + QuoteIdentifier(schema)
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return ClassifyDatabaseError(err, s.driver, "create schema", q, 0)
		}
	}

	drop := "DROP TABLE IF EXISTS " + name
	if _, err = tx.ExecContext(ctx, drop); err != nil {
		return ClassifyDatabaseError(err, s.driver, "drop", drop, 0)
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = QuoteIdentifier(c.Name) + " " + s.sqlType(c.Type)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return ClassifyDatabaseError(err, s.driver, "create", create, 0)
	}

	if err = s.insertRows(ctx, tx, name, columns, rows); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return ClassifyDatabaseError(err, s.driver, "commit", "", 0)
	}
	return nil
}

func (s *Store) insertRows(ctx context.Context, tx *sqlx.Tx, name string, columns []Column, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c.Name)
	}
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", name, strings.Join(quoted, ", "))

	batch := maxParams / len(columns)
	if batch > maxBatchRows {
		batch = maxBatchRows
	}
	if batch < 1 {
		batch = 1
	}

	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				return NewQueryError("insert", fmt.Sprintf("row %d has %d values, want %d", start+i+1, len(row), len(columns)), prefix, 0, nil, false)
			}
			placeholders[i] = rowPlaceholder
			args = append(args, row...)
		}

		q := tx.Rebind(prefix + strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return ClassifyDatabaseError(err, s.driver, "insert", q, len(args))
		}
	}
	return nil
}

// ReadTable returns the column names and rows of table ordered by orderBy
// (a column name, empty for storage order). Values are driver values:
// int64, float64, string or []byte, and nil for NULL.
func (s *Store) ReadTable(ctx context.Context, schema, table, orderBy string) ([]string, [][]interface{}, error) {
	q := "SELECT * FROM " + QualifiedName(schema, table)
	if orderBy != "" {
		q += " ORDER BY " + QuoteIdentifier(orderBy)
	}

	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, nil, ClassifyDatabaseError(err, s.driver, "select", q, 0)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, ClassifyDatabaseError(err, s.driver, "select", q, 0)
	}

	var out [][]interface{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, nil, ClassifyDatabaseError(err, s.driver, "scan", q, 0)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, ClassifyDatabaseError(err, s.driver, "select", q, 0)
	}
	return columns, out, nil
}
