// Package output provides the load stage of the pipeline.
// Output modules persist a result set into a named (database, table)
// destination, replacing whatever the destination held before.
package output

import (
	"context"
	"fmt"
	"regexp"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/pkg/connector"
)

// Sink stores result sets as whole tables.
type Sink interface {
	// WriteTable replaces database.table with rs. A failed write leaves the
	// previous contents in place.
	WriteTable(ctx context.Context, database, table string, rs *connector.ResultSet) error

	// ReadTable returns the stored result set ordered by rank.
	ReadTable(ctx context.Context, database, table string) (*connector.ResultSet, error)

	// Close releases any resources held by the sink.
	Close() error
}

// Module represents an output module bound to one destination.
type Module interface {
	// Send persists rs. Returns the number of records written.
	Send(ctx context.Context, rs *connector.ResultSet) (int, error)

	// Close releases any resources held by the module.
	Close() error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a logical database or table identifier.
func ValidateIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid %s identifier %q: must match %s", kind, name, identifierPattern.String())
	}
	return nil
}

// Load persists rs into database.table through sink, overwriting any prior
// contents. Loading the same result set twice leaves the same state as once.
// A nil result set is stored as an empty table. All failures are
// PersistenceErrors.
func Load(ctx context.Context, sink Sink, rs *connector.ResultSet, database, table string) error {
	if err := ValidateIdentifier("database", database); err != nil {
		return errhandling.NewPersistenceError(database, table, "validate", "invalid destination", err, false)
	}
	if err := ValidateIdentifier("table", table); err != nil {
		return errhandling.NewPersistenceError(database, table, "validate", "invalid destination", err, false)
	}
	if sink == nil {
		return errhandling.NewPersistenceError(database, table, "write", "no sink configured", nil, false)
	}
	if rs == nil {
		rs = &connector.ResultSet{}
	}
	if err := ctx.Err(); err != nil {
		return errhandling.NewPersistenceError(database, table, "write", "load canceled", err, false)
	}
	return sink.WriteTable(ctx, database, table, rs)
}

// Read returns the result set stored in database.table.
func Read(ctx context.Context, sink Sink, database, table string) (*connector.ResultSet, error) {
	if err := ValidateIdentifier("database", database); err != nil {
		return nil, errhandling.NewPersistenceError(database, table, "validate", "invalid destination", err, false)
	}
	if err := ValidateIdentifier("table", table); err != nil {
		return nil, errhandling.NewPersistenceError(database, table, "validate", "invalid destination", err, false)
	}
	return sink.ReadTable(ctx, database, table)
}

// TableOutput is the output module writing to one configured destination.
type TableOutput struct {
	sink     Sink
	database string
	table    string
}

// NewTableOutput binds sink to database.table.
func NewTableOutput(sink Sink, database, table string) (*TableOutput, error) {
	if sink == nil {
		return nil, errhandling.NewPersistenceError(database, table, "open", "no sink configured", nil, false)
	}
	if err := ValidateIdentifier("database", database); err != nil {
		return nil, errhandling.NewPersistenceError(database, table, "validate", "invalid destination", err, false)
	}
	if err := ValidateIdentifier("table", table); err != nil {
		return nil, errhandling.NewPersistenceError(database, table, "validate", "invalid destination", err, false)
	}
	return &TableOutput{sink: sink, database: database, table: table}, nil
}

// Send replaces the destination table with rs.
func (o *TableOutput) Send(ctx context.Context, rs *connector.ResultSet) (int, error) {
	if err := Load(ctx, o.sink, rs, o.database, o.table); err != nil {
		return 0, err
	}
	return rs.Len(), nil
}

// Read returns the current contents of the destination.
func (o *TableOutput) Read(ctx context.Context) (*connector.ResultSet, error) {
	return o.sink.ReadTable(ctx, o.database, o.table)
}

// Close closes the underlying sink.
func (o *TableOutput) Close() error {
	return o.sink.Close()
}
