package driver

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestNewDriver(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"invalid", Dialect("invalid"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, err := New(tt.dialect)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if drv == nil {
				t.Error("expected driver, got nil")
			}
		})
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"SQLite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pgx", DialectPostgres, false},
		{"mysql", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
	}
	for _, tt := range tests {
		if got := rebindDollar(tt.in); got != tt.want {
			t.Errorf("rebindDollar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := NewSQLite().Rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite Rebind changed query: %q", got)
	}
}

func TestSQLiteDriver(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	drv := NewSQLite()
	if err := drv.Open(Config{Dialect: DialectSQLite, DSN: dbPath}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = drv.Close() }()

	if drv.Dialect() != DialectSQLite {
		t.Errorf("Dialect() = %v, want %v", drv.Dialect(), DialectSQLite)
	}
	if drv.DB() == nil {
		t.Error("DB() returned nil")
	}

	ctx := context.Background()
	if err := drv.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if _, err := drv.Exec(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("Exec CREATE TABLE failed: %v", err)
	}
	if _, err := drv.Exec(ctx, "INSERT INTO test (name) VALUES (?)", "hello"); err != nil {
		t.Fatalf("Exec INSERT failed: %v", err)
	}

	var name string
	if err := drv.QueryRow(ctx, "SELECT name FROM test WHERE id = ?", 1).Scan(&name); err != nil {
		t.Fatalf("QueryRow Scan failed: %v", err)
	}
	if name != "hello" {
		t.Errorf("got %q, want 'hello'", name)
	}

	tx, err := drv.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO test (name) VALUES (?)", "world"); err != nil {
		t.Fatalf("tx.Exec failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit failed: %v", err)
	}

	tx2, err := drv.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	_, _ = tx2.Exec(ctx, "INSERT INTO test (name) VALUES (?)", "rollback")
	if err := tx2.Rollback(); err != nil {
		t.Errorf("tx.Rollback failed: %v", err)
	}

	var count int
	if err := drv.QueryRow(ctx, "SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("count scan failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestSQLiteMemoryIsShared(t *testing.T) {
	drv := NewSQLite()
	if err := drv.Open(Config{Dialect: DialectSQLite, DSN: MemoryDSN}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = drv.Close() }()

	ctx := context.Background()
	if _, err := drv.Exec(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	// A second statement must see the table created by the first.
	if _, err := drv.Exec(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestDriverCloseWithoutOpen(t *testing.T) {
	if err := NewSQLite().Close(); err != nil {
		t.Errorf("sqlite Close without Open failed: %v", err)
	}
	if err := NewPostgres().Close(); err != nil {
		t.Errorf("postgres Close without Open failed: %v", err)
	}
}

func TestPostgresDriverDialect(t *testing.T) {
	drv := NewPostgres()
	if drv.Dialect() != DialectPostgres {
		t.Errorf("Dialect() = %v, want %v", drv.Dialect(), DialectPostgres)
	}
	if got := drv.Rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("Rebind = %q", got)
	}
}

func TestSQLiteMigrate(t *testing.T) {
	drv := NewSQLite()
	if err := drv.Open(Config{Dialect: DialectSQLite, DSN: MemoryDSN}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = drv.Close() }()

	schema := fstest.MapFS{
		"schema/test_001.sql":  {Data: []byte(`CREATE TABLE test_table (id INTEGER PRIMARY KEY, name TEXT);`)},
		"schema/test_002.sql":  {Data: []byte(`ALTER TABLE test_table ADD COLUMN note TEXT;`)},
		"schema/other_001.sql": {Data: []byte(`CREATE TABLE other (id INTEGER);`)},
	}

	ctx := context.Background()
	if err := drv.Migrate(ctx, schema, "test"); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	var name string
	err := drv.QueryRow(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='test_table'").Scan(&name)
	if err != nil {
		t.Errorf("test_table not created: %v", err)
	}
	if err := drv.QueryRow(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='other'").Scan(&name); err == nil {
		t.Error("migrations for another schema type should not run")
	}

	// Idempotent: re-running must not re-apply the ALTER.
	if err := drv.Migrate(ctx, schema, "test"); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}

func TestExtractVersion(t *testing.T) {
	if v := extractVersion("factory_012.sql", "factory_"); v != 12 {
		t.Errorf("extractVersion = %d, want 12", v)
	}
}
