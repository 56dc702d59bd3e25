package storage

import (
	"context"
	"os"
	"testing"
)

// testPostgresDSN returns the integration database DSN, skipping the test when
// MEETSCRIBE_TEST_POSTGRES_DSN is not set.
func testPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MEETSCRIBE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEETSCRIBE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	store, err := NewPostgresStore(ctx, testPostgresDSN(t))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if _, err := store.pool.Exec(ctx, "TRUNCATE meetings"); err != nil {
		t.Fatalf("truncate meetings: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStore(t *testing.T) {
	testPostgresDSN(t)
	runStoreContract(t, func(t *testing.T) Store { return newTestPostgresStore(t) })
}
