package postgres

import (
	"context"
	"os"
	"testing"

	"expensetracker/internal/storage"
	"expensetracker/internal/storage/storagetest"
)

// Runs against a disposable database only when explicitly requested.
func TestPostgresStoreContract(t *testing.T) {
	if os.Getenv("RUN_POSTGRES_TESTS") != "true" {
		t.Skip("set RUN_POSTGRES_TESTS=true and DATABASE_URL to run")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := NewStore(ctx, url)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE users, transactions RESTART IDENTITY CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
