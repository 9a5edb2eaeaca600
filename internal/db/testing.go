package db

import (
	"context"
	"testing"
)

// NewTestFactoryDB creates a migrated in-memory factory database that is
// closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    fdb := db.NewTestFactoryDB(t)
//	    // use fdb...
//	}
func NewTestFactoryDB(t testing.TB) *FactoryDB {
	t.Helper()

	fdb, err := OpenFactoryInMemory(context.Background())
	if err != nil {
		t.Fatalf("create test factory db: %v", err)
	}

	t.Cleanup(func() {
		_ = fdb.Close()
	})

	return fdb
}
