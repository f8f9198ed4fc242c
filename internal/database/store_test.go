package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
)

var testColumns = []Column{
	{Name: "rank", Type: TypeInteger},
	{Name: "app", Type: TypeText},
	{Name: "rating", Type: TypeReal},
	{Name: "content rating", Type: TypeText},
}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, SQLiteDSN(filepath.Join(t.TempDir(), "market.db")))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store := NewStore(db, DriverSQLite)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_ReplaceAndRead(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	rows := [][]interface{}{
		{int64(2), "b", 4.1, "Teen"},
		{int64(1), "a", nil, "Everyone"},
	}
	if err := store.ReplaceTable(ctx, "", "top_apps", testColumns, rows); err != nil {
		t.Fatalf("ReplaceTable() error = %v", err)
	}

	cols, got, err := store.ReadTable(ctx, "", "top_apps", "rank")
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if diff := cmp.Diff([]string{"rank", "app", "rating", "content rating"}, cols); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0][0] != int64(1) || got[0][2] != nil {
		t.Errorf("first row = %v, want rank 1 with NULL rating", got[0])
	}
	if got[1][2] != 4.1 {
		t.Errorf("second row rating = %v", got[1][2])
	}
}

func TestStore_ReplaceIsFullReplace(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	first := [][]interface{}{{int64(1), "a", 1.0, ""}, {int64(2), "b", 2.0, ""}, {int64(3), "c", 3.0, ""}}
	second := [][]interface{}{{int64(1), "z", 5.0, ""}}

	if err := store.ReplaceTable(ctx, "", "t", testColumns, first); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := store.ReplaceTable(ctx, "", "t", testColumns, second); err != nil {
			t.Fatal(err)
		}
	}

	_, got, err := store.ReadTable(ctx, "", "t", "rank")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0][1] != "z" {
		t.Errorf("rows after replace = %v, want only z", got)
	}
}

func TestStore_BatchedInsert(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	rows := make([][]interface{}, 1234)
	for i := range rows {
		rows[i] = []interface{}{int64(i + 1), "app", 3.5, "Everyone"}
	}
	if err := store.ReplaceTable(ctx, "", "many", testColumns, rows); err != nil {
		t.Fatalf("ReplaceTable() error = %v", err)
	}
	_, got, err := store.ReadTable(ctx, "", "many", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(rows) {
		t.Errorf("got %d rows, want %d", len(got), len(rows))
	}
}

func TestStore_ReadMissingTable(t *testing.T) {
	store := openSQLite(t)

	_, _, err := store.ReadTable(context.Background(), "", "nope", "")
	if !IsNotFound(err) {
		t.Errorf("ReadTable() error = %v, want not found", err)
	}
}

func TestStore_FailedInsertRollsBack(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer mockDB.Close()

	store := NewStore(sqlx.NewDb(mockDB, DriverPostgres), DriverPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "market"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP TABLE IF EXISTS "market"."top_apps"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "market"."top_apps"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "market"."top_apps" .* VALUES \(\$1, \$2, \$3, \$4\)`).
		WillReturnError(errors.New("dial tcp 10.0.0.1:5432: connection reset by peer"))
	mock.ExpectRollback()

	err = store.ReplaceTable(context.Background(), "market", "top_apps", testColumns, [][]interface{}{{int64(1), "a", 4.5, ""}})

	dbErr := GetDatabaseError(err)
	if dbErr == nil {
		t.Fatalf("ReplaceTable() error = %v, want DatabaseError", err)
	}
	if dbErr.Category != CategoryConnection || !dbErr.Retryable {
		t.Errorf("error = %+v, want retryable connection error", dbErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_NoColumns(t *testing.T) {
	store := openSQLite(t)
	if err := store.ReplaceTable(context.Background(), "", "t", nil, nil); err == nil {
		t.Error("ReplaceTable() without columns should fail")
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Error("Open() with unsupported driver should fail")
	}
	if _, err := Open(context.Background(), DriverSQLite, " "); err == nil {
		t.Error("Open() with empty dsn should fail")
	}
}

func TestStore_PostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store := NewStore(db, DriverPostgres)
	defer store.Close()

	rows := [][]interface{}{{int64(1), "a", 4.5, "Everyone"}}
	if err := store.ReplaceTable(ctx, "topapps_test", "top_apps", testColumns, rows); err != nil {
		t.Fatalf("ReplaceTable() error = %v", err)
	}
	_, got, err := store.ReadTable(ctx, "topapps_test", "top_apps", "rank")
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d rows, want 1", len(got))
	}
}
