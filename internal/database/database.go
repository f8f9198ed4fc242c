// Package database provides SQL connection handling and table replacement
// for the SQL-backed sinks (SQLite and PostgreSQL).
package database

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	// PostgreSQL driver registers itself as "postgres".
	_ "github.com/lib/pq"
	// Pure Go SQLite driver registers itself as "sqlite".
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Connection defaults.
const (
	defaultPingTimeout   = 10 * time.Second
	defaultBusyTimeoutMs = 5000
	defaultMaxOpenConns  = 4
)

func init() {
	// modernc.org/sqlite registers as "sqlite", which sqlx does not know
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// IsSupportedDriver reports whether driver is one of the supported drivers.
func IsSupportedDriver(driver string) bool {
	return driver == DriverSQLite || driver == DriverPostgres
}

// Open opens a connection pool and pings it.
// SQLite pools are limited to a single connection so writers never contend.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if !IsSupportedDriver(driver) {
		return nil, NewConnectionError(fmt.Sprintf("unsupported driver %q", driver), nil)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, NewConnectionError("connection string is empty", nil)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, ClassifyDatabaseError(err, driver, "connect", "", 0)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, ClassifyDatabaseError(err, driver, "connect", "", 0)
	}
	return db, nil
}

// SQLiteDSN builds a modernc.org/sqlite DSN for a database file with a busy
// timeout, so concurrent processes wait for locks instead of failing.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, defaultBusyTimeoutMs)
}

var envRefPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// ResolveConnectionString returns connectionString, or the value of the
// environment variable named by ref ("${VAR}") when connectionString is empty.
func ResolveConnectionString(connectionString, ref string) (string, error) {
	if connectionString != "" {
		return connectionString, nil
	}
	if ref == "" {
		return "", NewConnectionError("connection string is required", nil)
	}
	m := envRefPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", NewConnectionError(fmt.Sprintf("invalid connection string reference %q, expected ${VAR}", ref), nil)
	}
	value, ok := os.LookupEnv(m[1])
	if !ok || value == "" {
		return "", NewConnectionError(fmt.Sprintf("environment variable %s is not set", m[1]), nil)
	}
	return value, nil
}

// QuoteIdentifier quotes an identifier for both SQLite and PostgreSQL.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName returns schema.table quoted, or just the table when schema is empty.
func QualifiedName(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// FormatPlaceholder returns the positional placeholder for the driver (1-based).
func FormatPlaceholder(driver string, position int) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("$%d", position)
	}
	return "?"
}
