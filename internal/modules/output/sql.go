package output

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/canectors/topapps/internal/database"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/pathutil"
	"github.com/canectors/topapps/pkg/connector"
)

// storeOpener returns the store holding a logical database and the schema
// the database maps to inside it.
type storeOpener func(ctx context.Context, database string) (store *database.Store, schema string, err error)

// SQLSink persists result sets into SQL tables.
//
// With SQLite every logical database is its own file under a data directory.
// With PostgreSQL every logical database is a schema of one connection.
type SQLSink struct {
	driver string
	open   storeOpener

	mu     sync.Mutex
	stores map[string]openStore
}

type openStore struct {
	store  *database.Store
	schema string
}

func newSQLSink(driver string, open storeOpener) *SQLSink {
	return &SQLSink{driver: driver, open: open, stores: make(map[string]openStore)}
}

// NewSQLiteSink creates a sink storing <dataDir>/<database>.db files.
func NewSQLiteSink(dataDir string) *SQLSink {
	return newSQLSink(database.DriverSQLite, func(ctx context.Context, name string) (*database.Store, string, error) {
		path, err := pathutil.JoinUnder(dataDir, name+".db")
		if err != nil {
			return nil, "", err
		}
		if dataDir != "" {
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, "", err
			}
		}
		db, err := database.Open(ctx, database.DriverSQLite, database.SQLiteDSN(path))
		if err != nil {
			return nil, "", err
		}
		return database.NewStore(db, database.DriverSQLite), "", nil
	})
}

// NewPostgresSink creates a sink mapping logical databases to schemas of dsn.
// The connection is opened on first use; a failed open is retried next time.
func NewPostgresSink(dsn string) *SQLSink {
	var shared *database.Store
	return newSQLSink(database.DriverPostgres, func(ctx context.Context, name string) (*database.Store, string, error) {
		if shared == nil {
			db, err := database.Open(ctx, database.DriverPostgres, dsn)
			if err != nil {
				return nil, "", err
			}
			shared = database.NewStore(db, database.DriverPostgres)
		}
		return shared, name, nil
	})
}

// NewStoreSink creates a sink over an already open store. When useSchema is
// true the logical database selects a schema, otherwise it is ignored.
func NewStoreSink(store *database.Store, useSchema bool) *SQLSink {
	return newSQLSink(store.Driver(), func(_ context.Context, name string) (*database.Store, string, error) {
		if useSchema {
			return store, name, nil
		}
		return store, "", nil
	})
}

// storeFor returns the store for a logical database, opening it on first use.
// Openers run under the sink lock.
func (s *SQLSink) storeFor(ctx context.Context, name string) (*database.Store, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.stores[name]; ok {
		return entry.store, entry.schema, nil
	}
	store, schema, err := s.open(ctx, name)
	if err != nil {
		return nil, "", err
	}
	s.stores[name] = openStore{store: store, schema: schema}
	return store, schema, nil
}

// WriteTable replaces database.table with rs in a single transaction.
func (s *SQLSink) WriteTable(ctx context.Context, db, table string, rs *connector.ResultSet) error {
	store, schema, err := s.storeFor(ctx, db)
	if err != nil {
		return persistenceError(db, table, "open", err)
	}

	if err := store.ReplaceTable(ctx, schema, table, tableColumns(rs), encodeRows(rs)); err != nil {
		return persistenceError(db, table, "write", err)
	}

	logger.Debug("table replaced",
		slog.String("driver", s.driver),
		slog.String("database", db),
		slog.String("table", table),
		slog.Int("records", rs.Len()))
	return nil
}

// ReadTable returns the stored result set ordered by rank.
func (s *SQLSink) ReadTable(ctx context.Context, db, table string) (*connector.ResultSet, error) {
	store, schema, err := s.storeFor(ctx, db)
	if err != nil {
		return nil, persistenceError(db, table, "open", err)
	}

	columns, rows, err := store.ReadTable(ctx, schema, table, connector.ColumnRank)
	if err != nil {
		return nil, persistenceError(db, table, "read", err)
	}
	rs, err := decodeRows(columns, rows)
	if err != nil {
		return nil, errhandling.NewPersistenceError(db, table, "read", "stored table is not a result set", err, false)
	}
	return rs, nil
}

// Close closes every store opened by the sink.
func (s *SQLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[*database.Store]struct{})
	var errs []error
	for name, entry := range s.stores {
		delete(s.stores, name)
		if _, dup := seen[entry.store]; dup {
			continue
		}
		seen[entry.store] = struct{}{}
		if err := entry.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// persistenceError wraps a store failure, carrying database retryability.
func persistenceError(db, table, op string, err error) error {
	msg := "database operation failed"
	retryable := false
	if dbErr := database.GetDatabaseError(err); dbErr != nil {
		msg = dbErr.Message
		retryable = dbErr.Retryable
		if dbErr.Category == database.CategoryNotFound {
			msg = "table does not exist"
		}
	} else if errors.Is(err, context.DeadlineExceeded) {
		retryable = true
	}
	return errhandling.NewPersistenceError(db, table, op, msg, err, retryable)
}
